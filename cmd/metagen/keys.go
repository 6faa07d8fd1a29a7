package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thisnaeem/metagen/internal/config"
	"github.com/thisnaeem/metagen/internal/gemini"
	"github.com/thisnaeem/metagen/internal/keypool"
	"github.com/thisnaeem/metagen/internal/observability"
	"github.com/thisnaeem/metagen/internal/store"
)

var keysCommand = &cobra.Command{
	Use:   "keys",
	Short: "Manage the pool of Gemini API keys",
}

var keysAddCommand = &cobra.Command{
	Use:   "add <secret>",
	Short: "Validate a new API key and add it to the pool",
	Args:  cobra.ExactArgs(1),
	RunE:  keysAdd,
}

var keysRemoveCommand = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an API key from the pool",
	Args:  cobra.ExactArgs(1),
	RunE:  keysRemove,
}

var keysListCommand = &cobra.Command{
	Use:   "list",
	Short: "List registered API keys with state and usage",
	RunE:  keysList,
}

var keysValidateCommand = &cobra.Command{
	Use:   "validate",
	Short: "Re-probe every registered API key",
	RunE:  keysValidate,
}

var (
	keysDatabaseURL string
	keysName        string
)

func init() {
	keysCommand.PersistentFlags().StringVar(&keysDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	keysAddCommand.Flags().StringVarP(&keysName, "name", "n", "", "Display name for the key")

	keysCommand.AddCommand(keysAddCommand)
	keysCommand.AddCommand(keysRemoveCommand)
	keysCommand.AddCommand(keysListCommand)
	keysCommand.AddCommand(keysValidateCommand)
	rootCmd.AddCommand(keysCommand)
}

// keysStore connects to the key database; key management requires one.
func keysStore(ctx context.Context) (*store.Store, error) {
	url := keysDatabaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return nil, fmt.Errorf("key management requires a database; set --db-url or DATABASE_URL")
	}
	db, err := store.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func keysAdd(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	secret := args[0]

	db, err := keysStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if existing, err := db.FindBySecret(ctx, secret); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("key %s is already registered", keypool.MaskSecret(secret))
	}

	// Run the key through the pool's validation state machine so the
	// persisted record reflects a real probe outcome.
	pool := keypool.NewPool(config.DefaultConfig().CapacityPerMinute, keypool.Hooks{
		OnStateChanged: func(snap keypool.Snapshot) {
			if err := db.SaveCredential(ctx, snap); err != nil {
				fmt.Printf("Warning: failed to persist key: %v\n", err)
			}
		},
	})
	snap := pool.Add(secret, keysName)
	if err := pool.BeginValidation(snap.ID); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client := gemini.NewClient(gemini.Settings{})
	probeErr := ""
	if err := client.Validate(probeCtx, secret); err != nil {
		probeErr = err.Error()
	}
	if err := pool.FinishValidation(snap.ID, probeErr); err != nil {
		return err
	}

	if probeErr != "" {
		return fmt.Errorf("key %s failed validation: %s", keypool.MaskSecret(secret), probeErr)
	}
	fmt.Printf("Added key %s (%s)\n", keypool.MaskSecret(secret), snap.ID)
	return nil
}

func keysRemove(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id %q: %w", args[0], err)
	}

	db, err := keysStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteCredential(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Removed key %s\n", id)
	return nil
}

func keysList(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	db, err := keysStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	creds, err := db.ListCredentials(ctx)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Println("No keys registered. Add one with 'metagen keys add <secret>'.")
		return nil
	}

	observability.NewPrinter(os.Stdout).PrintKeyTable(creds)
	for _, cred := range creds {
		fmt.Printf("%s  %s\n", cred.ID, keypool.MaskSecret(cred.Secret))
	}
	return nil
}

func keysValidate(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	db, err := keysStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	creds, err := db.ListCredentials(ctx)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Println("No keys registered.")
		return nil
	}

	client := gemini.NewClient(gemini.Settings{})
	for _, cred := range creds {
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		probeErr := client.Validate(probeCtx, cred.Secret)
		cancel()

		state := keypool.StateValid
		msg := "ok"
		if probeErr != nil {
			state = keypool.StateInvalid
			msg = probeErr.Error()
		}
		cred.State = state
		cred.LastError = ""
		if probeErr != nil {
			cred.LastError = probeErr.Error()
		}
		if err := db.SaveCredential(ctx, cred); err != nil {
			return err
		}
		fmt.Printf("%-20s %s\n", keypool.MaskSecret(cred.Secret), msg)
	}
	return nil
}
