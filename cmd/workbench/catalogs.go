package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/streamsql/workbench/pkg/store"
)

var catalogsCmd = &cobra.Command{
	Use:   "catalogs",
	Short: "Browse catalogs, databases and tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		catalogs, err := a.metadata.Catalogs(cmd.Context())
		if err != nil {
			return err
		}
		for _, catalog := range catalogs {
			pterm.Println(catalog)
		}
		return nil
	},
}

var catalogsDatabasesCmd = &cobra.Command{
	Use:   "databases <catalog>",
	Short: "List databases in a catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		databases, err := a.metadata.Databases(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, database := range databases {
			pterm.Println(database)
		}
		return nil
	},
}

var catalogsTablesCmd = &cobra.Command{
	Use:   "tables <catalog> [database]",
	Short: "List tables and views in a database",
	Long: `List tables and views in a database.

An explicit database is remembered per catalog; omitting it reuses the last
selection for that catalog.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		catalog := args[0]
		explicit := ""
		if len(args) == 2 {
			explicit = args[1]
		}
		database, err := resolveDatabase(a.store, catalog, explicit)
		if err != nil {
			return err
		}

		relations, err := a.metadata.Relations(cmd.Context(), catalog, database)
		if err != nil {
			return err
		}
		data := pterm.TableData{{"NAME", "KIND"}}
		for _, relation := range relations {
			data = append(data, []string{relation.Name, relation.Kind})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var catalogsDescribeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Describe a table's columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		columns, err := a.metadata.Columns(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data := pterm.TableData{{"COLUMN", "TYPE"}}
		for _, column := range columns {
			data = append(data, []string{column.Name, column.Type})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

// resolveDatabase picks the database for a catalog: an explicit choice is
// recorded as the catalog's preference, an omitted one falls back to the last
// recorded selection.
func resolveDatabase(st store.Store, catalog, database string) (string, error) {
	state, err := st.Load()
	if err != nil {
		return "", err
	}
	if database != "" {
		state.SetCatalogDatabase(catalog, database)
		if err := st.Save(state); err != nil {
			return "", err
		}
		return database, nil
	}
	if remembered := state.CatalogDatabase(catalog); remembered != "" {
		return remembered, nil
	}
	return "", fmt.Errorf("no database selected for catalog %s yet; name one explicitly", catalog)
}

func init() {
	catalogsCmd.AddCommand(catalogsDatabasesCmd)
	catalogsCmd.AddCommand(catalogsTablesCmd)
	catalogsCmd.AddCommand(catalogsDescribeCmd)
}
