// Command example is a runnable walkthrough of the RPC core: it wires two
// in-process Sessions together over a pair of plain Go channels and
// drives the calculator scenario from spec.md §8 end to end, printing
// the result. It exists to be read, not deployed.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	rpc "github.com/Sly1024/super-rpc"
	"github.com/Sly1024/super-rpc/descriptor"
)

func main() {
	app := &cli.App{
		Name:  "super-rpc-example",
		Usage: "drive a minimal object-graph RPC session end to end",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := zap.NewNop()
	if c.Bool("verbose") {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = l
	}

	host, client := wirePair()

	hostSession := rpc.NewSession(rpc.Options{Logger: log.Named("host")})
	hostSession.BindChannel(host)

	sum := 0
	calc := rpc.NewHostObject("calc", nil, descriptor.Object{
		Functions: []descriptor.Function{
			{Name: "add", Returns: descriptor.ReturnSync},
		},
	})
	calc.Functions["add"] = func(args []any) (any, error) {
		a, _ := args[0].(float64)
		b, _ := args[1].(float64)
		sum = int(a + b)
		return sum, nil
	}
	hostSession.RegisterHostObject("calc", calc)

	clientSession := rpc.NewSession(rpc.Options{Logger: log.Named("client")})
	clientSession.BindChannel(client)

	if _, err := clientSession.PullDescriptors().Await(); err != nil {
		return err
	}

	proxy, err := clientSession.GetProxyObject("calc")
	if err != nil {
		return err
	}

	result, err := proxy.Call("add", []any{2.0, 3.0})
	if err != nil {
		return err
	}
	fmt.Printf("calc.add(2, 3) = %v\n", result)
	return nil
}

// wirePair connects two rpc.Channel values back to back over plain Go
// channels: A's SendAsync feeds B's Receive handler and vice versa,
// standing in for a real transport (goridge, websocket) in this demo.
func wirePair() (a, b rpc.Channel) {
	toB := make(chan rpc.Message, 16)
	toA := make(chan rpc.Message, 16)

	var bHandler func(msg rpc.Message, reply *rpc.Channel, ctx any)
	var aHandler func(msg rpc.Message, reply *rpc.Channel, ctx any)

	a = rpc.Channel{
		SendAsync: func(msg rpc.Message) { toB <- msg },
		Receive: func(h func(msg rpc.Message, reply *rpc.Channel, ctx any)) {
			aHandler = h
		},
	}
	b = rpc.Channel{
		SendAsync: func(msg rpc.Message) { toA <- msg },
		Receive: func(h func(msg rpc.Message, reply *rpc.Channel, ctx any)) {
			bHandler = h
		},
	}

	go func() {
		for msg := range toB {
			if bHandler != nil {
				bHandler(msg, &b, nil)
			}
		}
	}()
	go func() {
		for msg := range toA {
			if aHandler != nil {
				aHandler(msg, &a, nil)
			}
		}
	}()

	return a, b
}
