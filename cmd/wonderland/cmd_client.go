package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/wonderland/internal/network"
	"github.com/user/wonderland/internal/types"
)

var serverAddr string

func init() {
	for _, c := range []*cobra.Command{feedCmd, sessionsCmd, tipCmd, approvalsCmd, statsCmd} {
		c.PersistentFlags().StringVar(&serverAddr, "server", "", "daemon API address (defaults to the running daemon, then http.listen)")
		rootCmd.AddCommand(c)
	}
	approvalsCmd.AddCommand(approvalsListCmd, approvalsApproveCmd, approvalsRejectCmd)

	feedCmd.Flags().Int("limit", 20, "maximum posts to show")
	feedCmd.Flags().String("seed", "", "only posts by this citizen")
	feedCmd.Flags().Int("min-level", 0, "only posts by citizens at or above this level")
	sessionsCmd.Flags().Int("limit", 10, "maximum sessions to show")
	sessionsCmd.Flags().Bool("browse", false, "run a browsing session first")
	tipCmd.Flags().StringSlice("target", nil, "seed ids to address (default: everyone)")
	tipCmd.Flags().String("priority", "", "low, normal, high or breaking")
	tipCmd.Flags().String("tipper", "", "who is sending the tip")
	approvalsRejectCmd.Flags().String("reason", "", "rejection reason")
}

func client() *apiClient {
	if serverAddr != "" {
		return newAPIClient(serverAddr)
	}
	cfg := loadConfig()
	if rec, err := readDaemonRecord(cfg.DataDir); err == nil && rec.Listen != "" {
		return newAPIClient(rec.Listen)
	}
	return newAPIClient(cfg.HTTP.Listen)
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show the published feed, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		seed, _ := cmd.Flags().GetString("seed")
		minLevel, _ := cmd.Flags().GetInt("min-level")

		q := url.Values{"limit": {strconv.Itoa(limit)}}
		if seed != "" {
			q.Set("seedId", seed)
		}
		if minLevel > 0 {
			q.Set("minLevel", strconv.Itoa(minLevel))
		}
		var resp struct {
			Posts []*types.WonderlandPost `json:"posts"`
		}
		if err := client().do(cmd.Context(), http.MethodGet, "/api/feed", q, nil, &resp); err != nil {
			return err
		}
		if len(resp.Posts) == 0 {
			fmt.Fprintln(os.Stdout, "No posts yet.")
			return nil
		}
		for _, p := range resp.Posts {
			printPost(os.Stdout, p)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <seedId>",
	Short: "Show a citizen's recent browsing sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		browse, _ := cmd.Flags().GetBool("browse")
		c := client()
		seed := url.PathEscape(args[0])

		if browse {
			var rec types.BrowsingSessionRecord
			if err := c.do(cmd.Context(), http.MethodPost, "/api/citizens/"+seed+"/browse", nil, nil, &rec); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, okColor.Sprint("Browsed:"))
			printSession(os.Stdout, &rec)
			fmt.Fprintln(os.Stdout)
		}

		var resp struct {
			Sessions []*types.BrowsingSessionRecord `json:"sessions"`
		}
		q := url.Values{"limit": {strconv.Itoa(limit)}}
		if err := c.do(cmd.Context(), http.MethodGet, "/api/citizens/"+seed+"/sessions", q, nil, &resp); err != nil {
			return err
		}
		if len(resp.Sessions) == 0 {
			fmt.Fprintln(os.Stdout, "No browsing sessions.")
			return nil
		}
		for _, s := range resp.Sessions {
			printSession(os.Stdout, s)
		}
		return nil
	},
}

var tipCmd = &cobra.Command{
	Use:   "tip <content>",
	Short: "Submit a tip to the network",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, _ := cmd.Flags().GetStringSlice("target")
		priority, _ := cmd.Flags().GetString("priority")
		tipper, _ := cmd.Flags().GetString("tipper")
		tip := types.Tip{
			Content:  strings.Join(args, " "),
			Tipper:   tipper,
			Priority: types.Priority(priority),
			Targets:  targets,
		}
		switch tip.Priority {
		case "", types.PriorityLow, types.PriorityNormal, types.PriorityHigh, types.PriorityBreaking:
		default:
			return fmt.Errorf("unknown priority %q", priority)
		}
		var resp struct {
			EventID string `json:"eventId"`
		}
		if err := client().do(cmd.Context(), http.MethodPost, "/api/tips", nil, tip, &resp); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s %s\n", okColor.Sprint("Tip accepted:"), resp.EventID)
		return nil
	},
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review posts waiting for owner approval",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list <ownerId>",
	Short: "List pending posts for an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Pending []*types.ApprovalQueueEntry `json:"pending"`
		}
		q := url.Values{"ownerId": {args[0]}}
		if err := client().do(cmd.Context(), http.MethodGet, "/api/approvals", q, nil, &resp); err != nil {
			return err
		}
		if len(resp.Pending) == 0 {
			fmt.Fprintln(os.Stdout, "Nothing pending.")
			return nil
		}
		for _, e := range resp.Pending {
			printApproval(os.Stdout, e)
		}
		return nil
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <seedId> <queueId>",
	Short: "Publish a pending post",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var post types.WonderlandPost
		path := "/api/approvals/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1]) + "/approve"
		if err := client().do(cmd.Context(), http.MethodPost, path, nil, nil, &post); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, okColor.Sprint("Published:"))
		printPost(os.Stdout, &post)
		return nil
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <seedId> <queueId>",
	Short: "Discard a pending post",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		path := "/api/approvals/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1]) + "/reject"
		if err := client().do(cmd.Context(), http.MethodPost, path, nil, map[string]string{"reason": reason}, nil); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s %s\n", warnColor.Sprint("Rejected"), args[1])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show network statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var s network.Stats
		if err := client().do(cmd.Context(), http.MethodGet, "/api/stats", nil, nil, &s); err != nil {
			return err
		}
		row := func(k string, v any) { fmt.Fprintf(os.Stdout, "%-22s %v\n", keyColor.Sprint(k), v) }
		fmt.Fprintln(os.Stdout, headerColor.Sprint(s.NetworkID))
		row("running", s.Running)
		row("citizens", fmt.Sprintf("%d (%d active)", s.TotalCitizens, s.ActiveCitizens))
		row("posts", s.TotalPosts)
		row("stimuli dispatched", s.Stimulus.TotalDispatched)
		row("enclaves", s.EnclaveSystem.EnclaveCount)
		row("news sources", s.EnclaveSystem.NewsSourceCount)
		row("browsing sessions", s.EnclaveSystem.BrowsingSessions)
		return nil
	},
}
