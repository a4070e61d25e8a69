package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"nanokern/defs"
)

var rootCmd = &cobra.Command{
	Use:   "nanostat",
	Short: "Inspect the process and thread state of a nanokern demo boot.",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Usage()
	},
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List every process known to the demo kernel.",
	Run: func(cmd *cobra.Command, args []string) {
		k, err := bootDemo()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"PID", "PPID", "NAME", "STATE", "POLICY", "PRIORITY"})
		for _, pid := range k.Procs.All() {
			p, _ := k.Procs.Get(pid)
			table.Append([]string{
				strconv.Itoa(int(p.ID)),
				strconv.Itoa(int(p.ParentID)),
				p.Name,
				p.State.String(),
				policyName(p.Policy),
				strconv.Itoa(p.CurrentPriority),
			})
		}
		table.Render()
	},
}

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List every thread known to the demo kernel.",
	Run: func(cmd *cobra.Command, args []string) {
		k, err := bootDemo()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"TID", "PID", "STATE", "PRIORITY", "SLICE", "CPU TICKS", "SWITCHES"})
		for _, tid := range k.Threads.All() {
			t, _ := k.Threads.Get(tid)
			table.Append([]string{
				strconv.Itoa(int(t.ID)),
				strconv.Itoa(int(t.Pid)),
				t.State.String(),
				strconv.Itoa(t.Priority),
				strconv.Itoa(t.SliceRemaining),
				strconv.FormatUint(t.CumulativeCPU, 10),
				strconv.FormatUint(t.ContextSwitches, 10),
			})
		}
		table.Render()
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump [pid]",
	Short: "Dump the full in-memory record of a single process.",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) < 1 {
			fmt.Println("usage: nanostat dump <pid>")
			return
		}
		pid, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		k, err := bootDemo()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		p, ok := k.Procs.Get(defs.Pid_t(pid))
		if !ok {
			fmt.Printf("no such process: %d\n", pid)
			return
		}
		spew.Dump(p)
	},
}

func policyName(p defs.Policy_t) string {
	switch p {
	case defs.PolicyCooperative:
		return "cooperative"
	case defs.PolicyRoundRobin:
		return "round-robin"
	case defs.PolicyPriority:
		return "priority"
	case defs.PolicyMLFQ:
		return "mlfq"
	case defs.PolicyFairShare:
		return "fair-share"
	case defs.PolicyRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

/// SetupCommands wires the nanostat command tree and returns the root.
func SetupCommands() *cobra.Command {
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(dumpCmd)
	return rootCmd
}
