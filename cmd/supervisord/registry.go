package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	registryCmd = &cobra.Command{
		Use:   "registry",
		Short: "Inspect the local server registry",
	}

	registryListCmd = &cobra.Command{
		Use:   "list",
		Short: "List every registered server",
		RunE:  runRegistryList,
	}

	registryRemoveCmd = &cobra.Command{
		Use:   "remove [slug]",
		Short: "Remove a server entry from the registry",
		Args:  cobra.ExactArgs(1),
		RunE:  runRegistryRemove,
	}
)

func init() {
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryRemoveCmd)
}

func runRegistryList(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	for _, entry := range a.store.List() {
		fmt.Printf("%-20s source=%-18s runtime=%-10s transport=%s\n",
			entry.Slug, entry.Source.Kind, entry.Runtime.Kind, entry.Entry.Transport)
	}
	return nil
}

func runRegistryRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return a.store.Remove(args[0])
}
