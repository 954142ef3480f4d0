// netcfgbu is a concurrent SSH-based network device configuration
// backup tool.
//
// Usage:
//
//	netcfgbu probe     [-C config] [-i inventory] [-l limit]... [-e exclude]...
//	netcfgbu login     [-C config] [-i inventory] [-l limit]... [-e exclude]...
//	netcfgbu backup    [-C config] [-i inventory] [-l limit]... [-e exclude]... [-b batch] [-t timeout]
//	netcfgbu inventory list  [-C config] [-i inventory] [-l limit]... [-e exclude]... [--brief]
//	netcfgbu vcs prepare|save|status [-C config]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jeremyschulman/netcfgbu-go/internal/config"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
	"github.com/jeremyschulman/netcfgbu-go/internal/jumphost"
	"github.com/jeremyschulman/netcfgbu-go/internal/ops"
	"github.com/jeremyschulman/netcfgbu-go/internal/report"
	"github.com/jeremyschulman/netcfgbu-go/internal/schedule"
	"github.com/jeremyschulman/netcfgbu-go/internal/vcs"
)

// stringList collects repeated -l/-e flags, mirroring flag.Value's
// contract for a multi-valued option.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("shutdown signal: %v", sig)
		cancel()
	}()

	var err error
	switch os.Args[1] {
	case "probe":
		err = runFanout(ctx, os.Args[2:], ops.Probe)
	case "login":
		err = runFanout(ctx, os.Args[2:], ops.Login)
	case "backup":
		err = runFanout(ctx, os.Args[2:], ops.Backup)
	case "inventory":
		err = runInventory(os.Args[2:])
	case "vcs":
		err = runVCS(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("netcfgbu: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: netcfgbu {probe|login|backup|inventory|vcs} [flags]")
}

// commonFlags bundles the flags shared by every record-oriented
// subcommand (probe, login, backup, inventory list).
type commonFlags struct {
	configFile string
	inv        string
	limit      stringList
	exclude    stringList
	batch      int
	timeout    int
	debugSSH   int
}

// newCommonFlagSet registers the flags shared by every record-oriented
// subcommand but defers fs.Parse to the caller, so a subcommand can
// register its own extra flags (e.g. inventory list's --brief) on the
// same set before parsing.
func newCommonFlagSet(name string) (*commonFlags, *flag.FlagSet) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := &commonFlags{}
	fs.StringVar(&cf.configFile, "C", "", "configuration file path")
	fs.StringVar(&cf.configFile, "config", "", "configuration file path")
	fs.StringVar(&cf.inv, "i", "", "inventory file path")
	fs.StringVar(&cf.inv, "inventory", "", "inventory file path")
	fs.Var(&cf.limit, "l", "limit to records matching expression (repeatable)")
	fs.Var(&cf.exclude, "e", "exclude records matching expression (repeatable)")
	fs.IntVar(&cf.batch, "b", 0, "batch size, 1..500")
	fs.IntVar(&cf.timeout, "t", 0, "overall run timeout in seconds, 0..300 (0 = none)")
	fs.IntVar(&cf.debugSSH, "debug-ssh", 0, "ssh debug verbosity, 1..3")
	return cf, fs
}

func parseCommon(name string, args []string) (*commonFlags, *flag.FlagSet) {
	cf, fs := newCommonFlagSet(name)
	fs.Parse(args)
	return cf, fs
}

func loadAndFilter(cf *commonFlags) (*config.Config, []inventory.Record, error) {
	configFile := cf.configFile
	if configFile == "" {
		configFile = os.Getenv(config.EnvConfigFile)
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}

	invFile := cf.inv
	if invFile == "" {
		invFile = cfg.Defaults.Inventory
	}
	if invFile == "" {
		return nil, nil, fmt.Errorf("no inventory file specified (-i, NETCFGBU_INVENTORY, or defaults.inventory)")
	}

	recs, err := inventory.Load(invFile)
	if err != nil {
		return nil, nil, err
	}

	fieldNames := inventory.FieldNames(recs)

	if len(cf.limit) > 0 {
		pred, err := inventory.CreateFilter(cf.limit, fieldNames, true)
		if err != nil {
			return nil, nil, err
		}
		recs = inventory.Apply(recs, pred)
	}
	if len(cf.exclude) > 0 {
		pred, err := inventory.CreateFilter(cf.exclude, fieldNames, false)
		if err != nil {
			return nil, nil, err
		}
		recs = inventory.Apply(recs, pred)
	}

	return cfg, recs, nil
}

func runFanout(ctx context.Context, args []string, taskOf func(*config.Config) schedule.TaskFunc) error {
	name := "run"
	cf, _ := parseCommon(name, args)

	cfg, recs, err := loadAndFilter(cf)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no inventory records selected")
	}

	if cf.debugSSH > 0 {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.Printf("[ssh] debug level %d enabled", cf.debugSSH)
	}

	jh, err := jumphost.Build(cfg.Jumphost, recs)
	if err != nil {
		return err
	}
	defer jh.Close()

	// -b/--batch overrides defaults.max_startups for this run, matching
	// the original CLI's --batch option (it bounds concurrent logins,
	// not a chunking window).
	maxStartups := cfg.Defaults.MaxStartups
	if cf.batch > 0 {
		maxStartups = cf.batch
	}
	rt := schedule.NewRuntime(maxStartups, jh)

	timeout := time.Duration(cf.timeout) * time.Second

	rpt := report.New()
	ch := schedule.Run(ctx, recs, rt, jh, taskOf(cfg), timeout)
	for res := range ch {
		rpt.Record(res.Rec, res.Err)
	}
	return rpt.Print()
}

func runInventory(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netcfgbu inventory {list|build}")
	}
	switch args[0] {
	case "list":
		cf, fs := newCommonFlagSet("inventory list")
		brief := fs.Bool("brief", false, "print only the os_name summary, not the full field table")
		fs.Parse(args[1:])

		_, recs, err := loadAndFilter(cf)
		if err != nil {
			return err
		}

		printInventorySummary(os.Stdout, recs)
		if *brief {
			return nil
		}

		fmt.Println()
		return printInventoryTable(os.Stdout, recs)
	case "build":
		return fmt.Errorf("inventory build: generating inventory from an external script is not implemented; run the script configured under [[inventory]] directly")
	default:
		return fmt.Errorf("unknown inventory subcommand %q", args[0])
	}
}

// printInventorySummary prints the TOTAL count and an os_name/count
// histogram, mirroring cli/inventory.py's "list" summary (Counter over
// os_name, sorted by count descending).
func printInventorySummary(w io.Writer, recs []inventory.Record) {
	fmt.Fprintf(w, "SUMMARY: TOTAL=%d\n\n", len(recs))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "os_name\tcount")
	for _, c := range inventory.Summarize(recs) {
		fmt.Fprintf(tw, "%s\t%d\n", c.OSName, c.Count)
	}
	tw.Flush()
}

// printInventoryTable prints every record as a tab-aligned field table,
// the non-brief half of cli/inventory.py's "list" output.
func printInventoryTable(w io.Writer, recs []inventory.Record) error {
	if len(recs) == 0 {
		return nil
	}
	fields := inventory.FieldNames(recs)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(fields, "\t"))
	for _, r := range recs {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = r[f]
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func runVCS(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netcfgbu vcs {prepare|save|status}")
	}

	fs := flag.NewFlagSet("vcs", flag.ExitOnError)
	configFile := fs.String("C", "", "configuration file path")
	fs.Parse(args[1:])

	cfgFile := *configFile
	if cfgFile == "" {
		cfgFile = os.Getenv(config.EnvConfigFile)
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Git == nil {
		return fmt.Errorf("vcs: no [git] section configured")
	}

	repo, err := vcs.New(cfg.Defaults.ConfigsDir, *cfg.Git)
	if err != nil {
		return err
	}

	switch args[0] {
	case "prepare":
		return repo.Prepare(ctx)
	case "save":
		return repo.Save(ctx, "netcfgbu backup")
	case "status":
		out, err := repo.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	default:
		return fmt.Errorf("unknown vcs subcommand %q", args[0])
	}
}
