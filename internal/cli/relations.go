package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"partialdump/internal/dbclient"
	"partialdump/internal/service"
)

var relationsRaw bool

var relationsCmd = &cobra.Command{
	Use:   "relations",
	Short: "Print the source foreign keys as pre-requisite templates",
	Long: `Read the foreign keys of the source schema and print them as
pre_requisites templates, ready to paste into partialdump.yaml.`,
	Example: `  # Generate templates from a local MySQL database
  partialdump relations --driver mysql --host 127.0.0.1 -u root -d shop`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Source.Driver.Valid() {
			return ConfigError(fmt.Sprintf("unsupported driver %q", cfg.Source.Driver), nil)
		}
		ctx := cmd.Context()
		conn, err := cfg.ResolveConnection()
		if err != nil {
			return Classify(&service.ConnectError{Err: err})
		}
		connector, err := dbclient.NewConnector(ctx, &conn, logger)
		if err != nil {
			return Classify(&service.ConnectError{Err: err})
		}
		defer connector.Close()
		if err := connector.TestConnection(ctx); err != nil {
			return Classify(&service.ConnectError{Err: err})
		}

		fks, err := connector.FindForeignKeys(ctx)
		if err != nil {
			return QueryError("reading foreign keys", err)
		}

		var out any = map[string][]string{
			"pre_requisites": dbclient.PreRequisites(fks, connector.Dialect()),
		}
		if relationsRaw {
			out = fks
		}
		b, err := yaml.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	relationsCmd.Flags().BoolVar(&relationsRaw, "raw", false, "print the foreign keys instead of templates")
}
