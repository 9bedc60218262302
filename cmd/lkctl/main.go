// lkctl is a thin command-line producer/consumer/admin client for
// LKSTREAM, in the same spirit as the teacher's cmd/client/main.go: a
// single small binary wired directly to internal/client, no CLI framework.
package main

import (
	"flag"
	"fmt"
	"os"

	"lkstream/internal/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var addr string
	registerCommonFlags := func(fs *flag.FlagSet) {
		fs.StringVar(&addr, "broker", "localhost:9092", "broker TCP address")
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create-topic":
		err = runCreateTopic(args, registerCommonFlags, &addr)
	case "produce":
		err = runProduce(args, registerCommonFlags, &addr)
	case "fetch":
		err = runFetch(args, registerCommonFlags, &addr)
	case "subscribe":
		err = runSubscribe(args, registerCommonFlags, &addr)
	case "commit-offset":
		err = runCommitOffset(args, registerCommonFlags, &addr)
	case "fetch-committed-offset":
		err = runFetchCommittedOffset(args, registerCommonFlags, &addr)
	case "describe-partition":
		err = runDescribePartition(args, registerCommonFlags, &addr)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "lkctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: lkctl <command> [flags]

commands:
  create-topic            -topic NAME -partitions N
  produce                 -topic NAME [-key K] value [value ...]
  fetch                   -topic NAME -pid N -offset OFF [-max-msgs N] [-max-bytes N]
  subscribe               -topic NAME -pid N -offset OFF [-max-msgs N] [-max-bytes N]
  commit-offset           -group G -topic NAME -pid N -offset OFF
  fetch-committed-offset  -group G -topic NAME -pid N
  describe-partition      -topic NAME -pid N`)
}

func dial(addr string) (*client.Client, error) {
	return client.NewClient(client.Config{BrokerAddr: addr, ClientID: "lkctl"})
}

func runCreateTopic(args []string, register func(*flag.FlagSet), addr *string) error {
	fs := flag.NewFlagSet("create-topic", flag.ExitOnError)
	register(fs)
	topic := fs.String("topic", "", "topic name")
	partitions := fs.Int("partitions", 1, "partition count")
	fs.Parse(args)

	c, err := dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.CreateTopic(*topic, *partitions); err != nil {
		return err
	}
	fmt.Printf("created topic %q with %d partitions\n", *topic, *partitions)
	return nil
}

func runProduce(args []string, register func(*flag.FlagSet), addr *string) error {
	fs := flag.NewFlagSet("produce", flag.ExitOnError)
	register(fs)
	topic := fs.String("topic", "", "topic name")
	key := fs.String("key", "", "producer key (empty: round-robin partition selection)")
	fs.Parse(args)

	values := make([][]byte, 0, fs.NArg())
	for _, v := range fs.Args() {
		values = append(values, []byte(v))
	}
	if len(values) == 0 {
		return fmt.Errorf("produce requires at least one value")
	}

	c, err := dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	var keyBytes []byte
	if *key != "" {
		keyBytes = []byte(*key)
	}
	pid, offsets, err := c.Produce(*topic, keyBytes, values)
	if err != nil {
		return err
	}
	fmt.Printf("pid=%d offsets=%v\n", pid, offsets)
	return nil
}

func runFetch(args []string, register func(*flag.FlagSet), addr *string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	register(fs)
	topic := fs.String("topic", "", "topic name")
	pid := fs.Int("pid", 0, "partition id")
	offset := fs.Uint64("offset", 0, "starting offset")
	maxMsgs := fs.Int("max-msgs", 100, "maximum records to return")
	maxBytes := fs.Int("max-bytes", 1<<20, "maximum response bytes")
	fs.Parse(args)

	c, err := dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	recs, err := c.Fetch(*topic, *pid, *offset, *maxMsgs, int32(*maxBytes))
	if err != nil {
		return err
	}
	printRecords(recs)
	return nil
}

func runSubscribe(args []string, register func(*flag.FlagSet), addr *string) error {
	fs := flag.NewFlagSet("subscribe", flag.ExitOnError)
	register(fs)
	topic := fs.String("topic", "", "topic name")
	pid := fs.Int("pid", 0, "partition id")
	offset := fs.Uint64("offset", 0, "starting offset")
	maxMsgs := fs.Int("max-msgs", 100, "maximum records per poll")
	maxBytes := fs.Int("max-bytes", 1<<20, "maximum response bytes per poll")
	fs.Parse(args)

	c, err := dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	cursor := *offset
	for {
		recs, err := c.Subscribe(*topic, *pid, cursor, *maxMsgs, int32(*maxBytes))
		if err != nil {
			return err
		}
		printRecords(recs)
		if len(recs) > 0 {
			cursor = recs[len(recs)-1].Offset + 1
		}
	}
}

func runCommitOffset(args []string, register func(*flag.FlagSet), addr *string) error {
	fs := flag.NewFlagSet("commit-offset", flag.ExitOnError)
	register(fs)
	group := fs.String("group", "", "consumer group")
	topic := fs.String("topic", "", "topic name")
	pid := fs.Int("pid", 0, "partition id")
	offset := fs.Uint64("offset", 0, "offset to commit")
	fs.Parse(args)

	c, err := dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.CommitOffset(*group, *topic, *pid, *offset); err != nil {
		return err
	}
	fmt.Println("committed")
	return nil
}

func runFetchCommittedOffset(args []string, register func(*flag.FlagSet), addr *string) error {
	fs := flag.NewFlagSet("fetch-committed-offset", flag.ExitOnError)
	register(fs)
	group := fs.String("group", "", "consumer group")
	topic := fs.String("topic", "", "topic name")
	pid := fs.Int("pid", 0, "partition id")
	fs.Parse(args)

	c, err := dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	offset, found, err := c.FetchCommittedOffset(*group, *topic, *pid)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("no committed offset")
		return nil
	}
	fmt.Printf("offset=%d\n", offset)
	return nil
}

func runDescribePartition(args []string, register func(*flag.FlagSet), addr *string) error {
	fs := flag.NewFlagSet("describe-partition", flag.ExitOnError)
	register(fs)
	topic := fs.String("topic", "", "topic name")
	pid := fs.Int("pid", 0, "partition id")
	fs.Parse(args)

	c, err := dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	d, err := c.DescribePartition(*topic, *pid)
	if err != nil {
		return err
	}
	fmt.Printf("earliest=%d next=%d segments=%d\n", d.EarliestOffset, d.NextOffset, d.SegmentCount)
	return nil
}

func printRecords(recs []client.Record) {
	for _, r := range recs {
		fmt.Printf("offset=%d ts=%d key=%s value=%s\n", r.Offset, r.Timestamp, string(r.Key), string(r.Value))
	}
}
