// teamsbotsctl - CLI tool for the teamsbots server
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teamsbots/teamsbots/internal/auth"
	"github.com/teamsbots/teamsbots/internal/schema"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	serverURL string
	apiKey    string
	output    string
	stdout    io.Writer = os.Stdout
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "teamsbotsctl",
		Short:   "teamsbots CLI - Inspect conversations and send proactive messages",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:3978", "teamsbots server URL")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "k", os.Getenv("TEAMSBOTS_API_KEY"), "Admin API key")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")

	convCmd := &cobra.Command{
		Use:   "conversations",
		Short: "Manage stored conversation references",
	}
	convCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored conversations",
			RunE:  listConversations,
		},
		&cobra.Command{
			Use:   "delete [key]",
			Short: "Forget a stored conversation",
			Args:  cobra.ExactArgs(1),
			RunE:  deleteConversation,
		},
	)

	proactiveCmd := &cobra.Command{
		Use:   "proactive",
		Short: "Send proactive messages",
	}
	proactiveCmd.AddCommand(
		&cobra.Command{
			Use:   "send [key] [text]",
			Short: "Send a message to one stored conversation",
			Args:  cobra.MinimumNArgs(2),
			RunE:  sendProactive,
		},
		&cobra.Command{
			Use:   "broadcast [text]",
			Short: "Send a message to every stored conversation",
			Args:  cobra.MinimumNArgs(1),
			RunE:  broadcast,
		},
	)

	hashCmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the bcrypt hash of an admin API key for admin.api_key_hashes",
		Args:  cobra.ExactArgs(1),
		RunE:  hashKey,
	}
	hashCmd.Flags().Int("cost", 0, "bcrypt cost (0 uses the default)")

	simulateCmd := &cobra.Command{
		Use:   "simulate [text]",
		Short: "Post an activity to a sample running with bot.skip_auth",
		Args:  cobra.ArbitraryArgs,
		RunE:  simulate,
	}
	simulateCmd.Flags().String("sample", "quickstart", "Sample to post to")
	simulateCmd.Flags().String("invoke", "", "Send an invoke with this name instead of a message")
	simulateCmd.Flags().String("value", "", "JSON value for the invoke")
	simulateCmd.Flags().String("user-id", "29:simulated-user", "Sender channel id")
	simulateCmd.Flags().String("user-name", "Simulated User", "Sender name")
	simulateCmd.Flags().String("aad-id", "00000000-0000-0000-0000-000000000001", "Sender AAD object id")
	simulateCmd.Flags().String("conversation-id", "a:simulated-conversation", "Conversation id")
	simulateCmd.Flags().String("service-url", "", "Service URL replies are sent to (defaults to the emulator port)")

	rootCmd.AddCommand(convCmd, proactiveCmd, hashCmd, simulateCmd)
	return rootCmd
}

// API client

func apiRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	url := strings.TrimRight(serverURL, "/") + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return map[string]interface{}{"success": true}, nil
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if success, ok := result["success"].(bool); !ok || !success {
		if errInfo, ok := result["error"].(map[string]interface{}); ok {
			return nil, fmt.Errorf("%s: %s", errInfo["code"], errInfo["message"])
		}
		return nil, fmt.Errorf("request failed")
	}

	return result, nil
}

// Output helpers

func printOutput(data interface{}) {
	switch output {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.Encode(data)
	default:
		// Table format handled by specific commands
	}
}

func printConversationsTable(conversations []interface{}) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tBOT\tUSER\tTYPE\tCONVERSATION\tUPDATED")

	for _, c := range conversations {
		conv := c.(map[string]interface{})
		updated := "-"
		if u, ok := conv["updated_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, u); err == nil {
				updated = t.Local().Format("2006-01-02 15:04:05")
			}
		}

		convID, _ := conv["conversation_id"].(string)
		if len(convID) > 24 {
			convID = convID[:24] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			conv["key"],
			valueOr(conv["bot"], "-"),
			valueOr(conv["user_name"], "-"),
			valueOr(conv["conversation_type"], "-"),
			convID,
			updated,
		)
	}
	w.Flush()
}

func valueOr(v interface{}, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// Conversation commands

func listConversations(cmd *cobra.Command, args []string) error {
	result, err := apiRequest("GET", "/api/v1/conversations", nil)
	if err != nil {
		return err
	}

	data := result["data"].(map[string]interface{})
	conversations, _ := data["conversations"].([]interface{})

	if output == "table" {
		fmt.Fprintf(stdout, "Total: %d conversations\n\n", len(conversations))
		printConversationsTable(conversations)
	} else {
		printOutput(conversations)
	}

	return nil
}

func deleteConversation(cmd *cobra.Command, args []string) error {
	if _, err := apiRequest("DELETE", "/api/v1/conversations/"+args[0], nil); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Conversation deleted")
	return nil
}

// Proactive commands

func sendProactive(cmd *cobra.Command, args []string) error {
	text := strings.Join(args[1:], " ")
	if _, err := apiRequest("POST", "/api/v1/proactive/"+args[0], map[string]string{"text": text}); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Message sent to %s\n", args[0])
	return nil
}

func broadcast(cmd *cobra.Command, args []string) error {
	result, err := apiRequest("POST", "/api/v1/proactive/broadcast", map[string]string{"text": strings.Join(args, " ")})
	if err != nil {
		return err
	}

	data := result["data"].(map[string]interface{})
	if output != "table" {
		printOutput(data)
		return nil
	}

	fmt.Fprintf(stdout, "Broadcast sent: %.0f delivered, %.0f failed\n", data["sent"], data["failed"])
	if errs, ok := data["errors"].([]interface{}); ok {
		for _, e := range errs {
			fmt.Fprintf(stdout, "  %s\n", e)
		}
	}
	return nil
}

// Utility commands

func hashKey(cmd *cobra.Command, args []string) error {
	cost, _ := cmd.Flags().GetInt("cost")
	hash, err := auth.HashAPIKey(args[0], cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

func simulate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	sample, _ := flags.GetString("sample")
	invoke, _ := flags.GetString("invoke")
	value, _ := flags.GetString("value")
	userID, _ := flags.GetString("user-id")
	userName, _ := flags.GetString("user-name")
	aadID, _ := flags.GetString("aad-id")
	convID, _ := flags.GetString("conversation-id")
	serviceURL, _ := flags.GetString("service-url")
	if serviceURL == "" {
		serviceURL = "http://localhost:3979"
	}

	activity := schema.Activity{
		Type:       schema.ActivityTypeMessage,
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ServiceURL: serviceURL,
		ChannelID:  "msteams",
		From:       schema.ChannelAccount{ID: userID, Name: userName, AADObjectID: aadID},
		Recipient:  schema.ChannelAccount{ID: "28:teamsbots", Name: "teamsbots"},
		Conversation: schema.ConversationAccount{
			ID:               convID,
			ConversationType: schema.ConversationTypePersonal,
		},
		Text: strings.Join(args, " "),
	}
	if invoke != "" {
		activity.Type = schema.ActivityTypeInvoke
		activity.Name = invoke
		if value != "" {
			if !json.Valid([]byte(value)) {
				return fmt.Errorf("--value is not valid JSON")
			}
			activity.Value = json.RawMessage(value)
		}
	}

	data, err := json.Marshal(activity)
	if err != nil {
		return err
	}

	url := strings.TrimRight(serverURL, "/") + "/api/" + sample + "/messages"
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Fprintf(stdout, "%s %s\n", resp.Status, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
