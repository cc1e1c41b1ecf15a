package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the API keys used to authenticate against the tixgate API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// keyService opens the store and builds a KeyService over it. The caller
// owns the returned close function.
func keyService() (*service.KeyService, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewKeyService(store, logger), func() { store.Close() }, nil
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name      string
		ownerID   string
		ownerType string
		rateLimit int
		expiresIn string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  tixgate key create --name "CI pipeline"
  tixgate key create --name partner --owner org_42 --owner-type organization --expires-in 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(name, ownerID, ownerType, rateLimit, expiresIn)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner identifier the key is bound to")
	cmd.Flags().StringVar(&ownerType, "owner-type", "", "Owner type: user or organization")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per minute the key may make (0 = default)")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "Key lifetime as a duration, e.g. 720h (default: never)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(name, ownerID, ownerType string, rateLimit int, expiresIn string) error {
	svc, closeStore, err := keyService()
	if err != nil {
		return err
	}
	defer closeStore()

	params := service.IssueParams{
		Name:      name,
		OwnerID:   ownerID,
		OwnerType: ownerType,
		RateLimit: rateLimit,
	}
	if expiresIn != "" {
		ttl, err := time.ParseDuration(expiresIn)
		if err != nil {
			return fmt.Errorf("parse --expires-in: %w", err)
		}
		expiry := time.Now().UTC().Add(ttl)
		params.ExpiresAt = &expiry
	}

	key, plaintext, err := svc.Issue(context.Background(), params)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", plaintext)
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  Prefix: %s\n", key.KeyPrefix)
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	svc, closeStore, err := keyService()
	if err != nil {
		return err
	}
	defer closeStore()

	keys, err := svc.List(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	type keyRow struct {
		ID       int64  `json:"id"`
		Prefix   string `json:"prefix"`
		Name     string `json:"name"`
		Owner    string `json:"owner"`
		Active   bool   `json:"active"`
		LastUsed string `json:"last_used,omitempty"`
	}

	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		lastUsed := ""
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format(time.RFC3339)
		}
		rows[i] = keyRow{
			ID:       k.ID,
			Prefix:   k.KeyPrefix,
			Name:     k.Name,
			Owner:    k.OwnerID,
			Active:   k.IsActive,
			LastUsed: lastUsed,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys configured. Use 'tixgate key create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-14s %-24s %-16s %-8s %-22s\n", "ID", "PREFIX", "NAME", "OWNER", "ACTIVE", "LAST USED")
	fmt.Printf("%-6s %-14s %-24s %-16s %-8s %-22s\n", "--", "------", "----", "-----", "------", "---------")
	for _, k := range rows {
		active := "yes"
		if !k.Active {
			active = "no"
		}
		fmt.Printf("%-6d %-14s %-24s %-16s %-8s %-22s\n", k.ID, k.Prefix, k.Name, k.Owner, active, k.LastUsed)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Deactivate an API key, preventing any further authenticated requests using that key. The record is kept for audit.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(prefix string) error {
	svc, closeStore, err := keyService()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()

	keys, err := svc.List(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	var matched *model.APIKey
	for i := range keys {
		if strings.HasPrefix(keys[i].KeyPrefix, prefix) {
			matched = &keys[i]
			break
		}
	}
	if matched == nil {
		return fmt.Errorf("no API key found with prefix %q", prefix)
	}

	if err := svc.Revoke(ctx, matched.ID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %q (%s)\n", matched.Name, matched.KeyPrefix)
	return nil
}
