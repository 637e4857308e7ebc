package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/outflowhq/outflow/internal/config"
	"github.com/outflowhq/outflow/internal/db"
	"github.com/outflowhq/outflow/internal/repository"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key management commands",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyCreate,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all API keys",
	RunE:  runAPIKeyList,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke [id]",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	apikeyCmd.AddCommand(apikeyCreateCmd)
	apikeyCmd.AddCommand(apikeyListCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)

	apikeyCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/outflow/outflow.yaml", "Path to configuration file")
}

func openAPIKeyRepo() (*repository.APIKeyRepository, func(), error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, err
	}

	return repository.NewAPIKeyRepository(database.DB), func() { database.Close() }, nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openAPIKeyRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	token, key, err := repo.Create(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("API key created: %s\n", key.ID)
	fmt.Printf("Token (shown only once): %s\n", token)
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openAPIKeyRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	keys, err := repo.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREVOKED\tCREATED\tLAST USED")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
			k.ID, k.Name, k.Revoked, k.CreatedAt.Format("2006-01-02 15:04"), lastUsed)
	}
	return w.Flush()
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openAPIKeyRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := repo.Revoke(args[0]); err != nil {
		return err
	}

	fmt.Println("API key revoked")
	return nil
}
