// Package main is the entry point for the ingest service's operator CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/registrycache"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/srhttp"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	registryURL string
	username    string
	password    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ingest-admin",
		Short: "Admin CLI for the Kafka-to-Delta Protobuf ingest service",
	}

	rootCmd.PersistentFlags().StringVarP(&registryURL, "registry", "r", "http://localhost:8081", "Schema registry base URL")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "Username for basic auth")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "Password for basic auth")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("ingest-admin %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve-topic <topic> <full-name>",
		Short: "Resolve a topic's registry schema and print the compiled message's fields (the schema id is not printed)",
		Args:  cobra.ExactArgs(2),
		RunE:  resolveTopic,
	}

	dumpCmd := &cobra.Command{
		Use:   "dump-schema <topic> <full-name>",
		Short: "Resolve a topic and print its projected Arrow schema as JSON",
		Args:  cobra.ExactArgs(2),
		RunE:  dumpSchema,
	}

	primeCmd := &cobra.Command{
		Use:   "prime <topic> <full-name>",
		Short: "Resolve and compile a topic's schema to warm the registry cache",
		Args:  cobra.ExactArgs(2),
		RunE:  primeCache,
	}

	rootCmd.AddCommand(versionCmd, resolveCmd, dumpCmd, primeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCache() *registrycache.Cache {
	var opts []srhttp.Option
	if username != "" {
		opts = append(opts, srhttp.WithBasicAuth(username, password))
	}
	fetcher := srhttp.New(registryURL, opts...)
	return registrycache.New(fetcher, 64, time.Hour, nil)
}

func resolveTopic(cmd *cobra.Command, args []string) error {
	topic, fullName := args[0], args[1]
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	compiled, err := newCache().SchemaOfTopic(ctx, topic, fullName)
	if err != nil {
		return fmt.Errorf("resolving topic %q: %w", topic, err)
	}

	fmt.Printf("message %s (%d fields):\n", compiled.FullName(), compiled.MessageDescriptor().Fields().Len())
	fields := compiled.MessageDescriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		fmt.Printf("  %d: %s (%s)\n", fd.Number(), fd.Name(), fd.Kind())
	}
	return nil
}

func dumpSchema(cmd *cobra.Command, args []string) error {
	topic, fullName := args[0], args[1]
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	compiled, err := newCache().SchemaOfTopic(ctx, topic, fullName)
	if err != nil {
		return fmt.Errorf("resolving topic %q: %w", topic, err)
	}

	schema, err := compiled.ArrowSchema()
	if err != nil {
		return fmt.Errorf("projecting arrow schema: %w", err)
	}

	out, err := json.MarshalIndent(schema.String(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func primeCache(cmd *cobra.Command, args []string) error {
	topic, fullName := args[0], args[1]
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := newCache().SchemaOfTopic(ctx, topic, fullName); err != nil {
		return fmt.Errorf("priming cache for topic %q: %w", topic, err)
	}
	fmt.Printf("primed %s in %s\n", topic, time.Since(start))
	return nil
}
