// Command dcpctl is the operator's CLI: it talks to a running bpd,
// vardisd and/or srpd over their UNIX command sockets, mirroring the
// teacher's ctl tool's urfave/cli command-per-verb layout.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/dcp-vardis/dcp-vardis-go/internal/bp"
	"github.com/dcp-vardis/dcp-vardis-go/internal/srp"
	"github.com/dcp-vardis/dcp-vardis-go/internal/vardis"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

func green(s string) string {
	c := color.New(color.FgHiGreen)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func red(s string) string {
	c := color.New(color.FgHiRed)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func yellow(s string) string {
	c := color.New(color.FgHiYellow)
	c.EnableColor()
	return c.SprintFunc()(s)
}

var bpSocketFlag = cli.StringFlag{Name: "bp-socket", Value: "/tmp/dcp-bpd.sock", Usage: "bpd's UNIX command socket"}
var vardisSocketFlag = cli.StringFlag{Name: "vardis-socket", Value: "/tmp/dcp-vardisd.sock", Usage: "vardisd's UNIX command socket"}
var srpSocketFlag = cli.StringFlag{Name: "srp-socket", Value: "/tmp/dcp-srpd.sock", Usage: "srpd's UNIX command socket"}

func bpCommands() cli.Command {
	return cli.Command{
		Name:  "bp",
		Usage: "talk to the beaconing daemon",
		Subcommands: []cli.Command{
			{
				Name:  "list",
				Usage: "list registered client protocols",
				Flags: []cli.Flag{bpSocketFlag},
				Action: func(c *cli.Context) error {
					client := bp.Dial(c.String("bp-socket"))
					regs, err := client.List()
					if err != nil {
						return err
					}
					for _, r := range regs {
						fmt.Printf("%s  %-10s maxPayload=%-5d mode=%s\n", green(fmt.Sprintf("0x%04x", r.ProtocolId)), r.Name, r.MaxPayloadSize, r.Mode)
					}
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "show beacon statistics",
				Flags: []cli.Flag{bpSocketFlag},
				Action: func(c *cli.Context) error {
					client := bp.Dial(c.String("bp-socket"))
					st, err := client.Stats()
					if err != nil {
						return err
					}
					fmt.Printf("seqno=%d avgBeaconSize=%.1f avgInterBeaconTime=%s unknownProtocolDrops=%d\n", st.BPSeqno, st.AvgBeaconSize, st.AvgInterBeaconTime, st.CntDroppedIncomingUnknownProtocol)
					for pid, n := range st.CntOutgoingPayloads {
						fmt.Printf("  out[0x%04x]=%d drop=%d\n", pid, n, st.CntDroppedOutgoingPayloads[pid])
					}
					for pid, n := range st.CntIncomingPayloads {
						fmt.Printf("  in[0x%04x]=%d drop=%d\n", pid, n, st.CntDroppedIncomingPayloads[pid])
					}
					return nil
				},
			},
			{
				Name:  "activate",
				Flags: []cli.Flag{bpSocketFlag},
				Action: func(c *cli.Context) error {
					return bp.Dial(c.String("bp-socket")).Activate()
				},
			},
			{
				Name:  "deactivate",
				Flags: []cli.Flag{bpSocketFlag},
				Action: func(c *cli.Context) error {
					return bp.Dial(c.String("bp-socket")).Deactivate()
				},
			},
			{
				Name:  "shutdown",
				Flags: []cli.Flag{bpSocketFlag},
				Action: func(c *cli.Context) error {
					return bp.Dial(c.String("bp-socket")).Shutdown()
				},
			},
		},
	}
}

func vardisCommands() cli.Command {
	return cli.Command{
		Name:  "vardis",
		Usage: "talk to the variable-dissemination daemon",
		Subcommands: []cli.Command{
			{
				Name:  "create",
				Usage: "dcpctl vardis create <varId> <description> <repCnt> <value>",
				Flags: []cli.Flag{vardisSocketFlag},
				Action: func(c *cli.Context) error {
					if c.NArg() != 4 {
						return cli.NewExitError("usage: create <varId> <description> <repCnt> <value>", 1)
					}
					varId, repCnt, err := parseVarIdRepCnt(c.Args().Get(0), c.Args().Get(2))
					if err != nil {
						return err
					}
					client := vardis.Dial(c.String("vardis-socket"))
					status, err := client.Create(varId, wire.VarDescription(c.Args().Get(1)), repCnt, []byte(c.Args().Get(3)))
					if err != nil {
						return err
					}
					return printStatus(status)
				},
			},
			{
				Name:  "update",
				Usage: "dcpctl vardis update <varId> <value>",
				Flags: []cli.Flag{vardisSocketFlag},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return cli.NewExitError("usage: update <varId> <value>", 1)
					}
					varId, err := parseVarId(c.Args().Get(0))
					if err != nil {
						return err
					}
					client := vardis.Dial(c.String("vardis-socket"))
					status, err := client.Update(varId, []byte(c.Args().Get(1)))
					if err != nil {
						return err
					}
					return printStatus(status)
				},
			},
			{
				Name:  "delete",
				Usage: "dcpctl vardis delete <varId>",
				Flags: []cli.Flag{vardisSocketFlag},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.NewExitError("usage: delete <varId>", 1)
					}
					varId, err := parseVarId(c.Args().Get(0))
					if err != nil {
						return err
					}
					client := vardis.Dial(c.String("vardis-socket"))
					status, err := client.Delete(varId)
					if err != nil {
						return err
					}
					return printStatus(status)
				},
			},
			{
				Name:  "read",
				Usage: "dcpctl vardis read <varId>",
				Flags: []cli.Flag{vardisSocketFlag},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.NewExitError("usage: read <varId>", 1)
					}
					varId, err := parseVarId(c.Args().Get(0))
					if err != nil {
						return err
					}
					client := vardis.Dial(c.String("vardis-socket"))
					resp, err := client.Read(varId)
					if err != nil {
						return err
					}
					if resp.Status != vardis.StatusOk {
						return printStatus(resp.Status)
					}
					fmt.Printf("%s  tstamp=%s\n", green(string(resp.Value)), resp.TStamp.Format("15:04:05.000"))
					return nil
				},
			},
			{
				Name:  "describe-db",
				Flags: []cli.Flag{vardisSocketFlag},
				Action: func(c *cli.Context) error {
					client := vardis.Dial(c.String("vardis-socket"))
					vars, err := client.DescribeDatabase()
					if err != nil {
						return err
					}
					for _, v := range vars {
						marker := ""
						if v.IsDeleted {
							marker = red(" (deleted)")
						}
						fmt.Printf("%-4d %-20s seqno=%-3d producer=%s%s\n", v.VarId, v.Spec.Description, v.Seqno, v.Spec.Producer, marker)
					}
					return nil
				},
			},
			{
				Name:  "activate",
				Flags: []cli.Flag{vardisSocketFlag},
				Action: func(c *cli.Context) error {
					return vardis.Dial(c.String("vardis-socket")).Activate()
				},
			},
			{
				Name:  "deactivate",
				Flags: []cli.Flag{vardisSocketFlag},
				Action: func(c *cli.Context) error {
					return vardis.Dial(c.String("vardis-socket")).Deactivate()
				},
			},
			{
				Name:  "shutdown",
				Flags: []cli.Flag{vardisSocketFlag},
				Action: func(c *cli.Context) error {
					return vardis.Dial(c.String("vardis-socket")).Shutdown()
				},
			},
		},
	}
}

func srpCommands() cli.Command {
	return cli.Command{
		Name:  "srp",
		Usage: "talk to the safety-report daemon",
		Subcommands: []cli.Command{
			{
				Name:  "neighbors",
				Flags: []cli.Flag{srpSocketFlag},
				Action: func(c *cli.Context) error {
					client := srp.Dial(c.String("srp-socket"))
					neighbors, err := client.Neighbors()
					if err != nil {
						return err
					}
					for _, n := range neighbors {
						fmt.Printf("%s  lastSeen=%s\n", n.NodeId, n.LastSeen.Format("15:04:05.000"))
					}
					return nil
				},
			},
			{
				Name:  "activate",
				Flags: []cli.Flag{srpSocketFlag},
				Action: func(c *cli.Context) error {
					return srp.Dial(c.String("srp-socket")).Activate()
				},
			},
			{
				Name:  "deactivate",
				Flags: []cli.Flag{srpSocketFlag},
				Action: func(c *cli.Context) error {
					return srp.Dial(c.String("srp-socket")).Deactivate()
				},
			},
			{
				Name:  "shutdown",
				Flags: []cli.Flag{srpSocketFlag},
				Action: func(c *cli.Context) error {
					return srp.Dial(c.String("srp-socket")).Shutdown()
				},
			},
		},
	}
}

func parseVarId(s string) (wire.VarId, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 0 || n > 255 {
		return 0, cli.NewExitError(fmt.Sprintf("invalid varId %q", s), 1)
	}
	return wire.VarId(n), nil
}

func parseVarIdRepCnt(varIdStr, repCntStr string) (wire.VarId, wire.VarRepCnt, error) {
	varId, err := parseVarId(varIdStr)
	if err != nil {
		return 0, 0, err
	}
	var n int
	if _, err := fmt.Sscanf(repCntStr, "%d", &n); err != nil || n < 0 || n > int(wire.MaxRepCnt) {
		return 0, 0, cli.NewExitError(fmt.Sprintf("invalid repCnt %q", repCntStr), 1)
	}
	return varId, wire.VarRepCnt(n), nil
}

func printStatus(status vardis.Status) error {
	if status == vardis.StatusOk {
		fmt.Println(green("ok"))
		return nil
	}
	fmt.Println(yellow(status.Error()))
	return cli.NewExitError(status.Error(), 1)
}

func main() {
	app := cli.NewApp()
	app.Name = "dcpctl"
	app.Usage = "operate the BP/VD/SR daemon stack"
	app.Commands = []cli.Command{bpCommands(), vardisCommands(), srpCommands()}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}
