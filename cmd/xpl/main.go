package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"spaceexplorers/internal/auth"
	cl "spaceexplorers/internal/cli"
	"spaceexplorers/internal/config"
	"spaceexplorers/internal/game"
	"spaceexplorers/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "xpl",
		Short:        "Space explorers CLI client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newMeCmd(&apiBase),
		newRenameCmd(&apiBase),
		newJourneyCmd(&apiBase),
		newDiscoverCmd(&apiBase),
		newShopCmd(&apiBase),
		newBuyCmd(&apiBase),
		newShipCmd(&apiBase),
		newEquipCmd(&apiBase, true),
		newEquipCmd(&apiBase, false),
		newAchievementsCmd(&apiBase),
		newChallengesCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

// loadSession returns the saved session, refreshing the access token first
// when it is about to expire.
func loadSession(cmd *cobra.Command, apiBase *string) (cl.Session, error) {
	store, err := cl.DefaultSessionStore()
	if err != nil {
		return cl.Session{}, err
	}
	sess, err := store.Load()
	if errors.Is(err, cl.ErrNoSession) {
		return cl.Session{}, errors.New("login required: run `xpl login`")
	}
	if err != nil {
		return cl.Session{}, err
	}
	if !sess.Expired(time.Now()) || sess.RefreshToken == "" {
		return sess, nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	fresh, err := newClient(apiBase).Refresh(ctx, sess.RefreshToken)
	if cl.IsAPIError(err) {
		_ = store.Clear()
		return cl.Session{}, fmt.Errorf("session expired, run `xpl login`: %w", err)
	}
	if err != nil {
		// unreachable; keep the old token
		return sess, nil
	}
	next := cl.SessionFrom(fresh, time.Now())
	if next.UserID == "" {
		next.UserID, next.Email = sess.UserID, sess.Email
	}
	if err := store.Save(next); err != nil {
		return cl.Session{}, err
	}
	return next, nil
}

func saveSession(s auth.Session) error {
	store, err := cl.DefaultSessionStore()
	if err != nil {
		return err
	}
	return store.Save(cl.SessionFrom(s, time.Now()))
}

func openQueue() (*syncq.Queue, error) {
	dir, err := cl.BaseDir()
	if err != nil {
		return nil, err
	}
	return syncq.New(dir), nil
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a pilot account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			username, err := promptOptional("Username (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Signup(ctx, email, password, username)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `xpl login`.")
				return nil
			}
			if err := saveSession(session); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to the fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := saveSession(session); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cl.DefaultSessionStore()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newMeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "me [user_id]",
		Short: "Show your pilot profile, or another pilot's",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			var u game.User
			if id := userFromArgs(args); id != "" {
				u, err = client.Profile(ctx, sess.AccessToken, id)
			} else {
				u, err = client.Me(ctx, sess.AccessToken)
			}
			if err != nil {
				return err
			}
			renderProfile(u)
			return nil
		},
	}
}

func newRenameCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rename [username]",
		Short: "Change your username",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			var name string
			if len(args) > 0 {
				name = strings.TrimSpace(args[0])
			} else if name, err = promptRequired("New username"); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			u, err := newClient(apiBase).UpdateUsername(ctx, sess.AccessToken, name)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("You are now %s.", u.Username))
			return nil
		},
	}
}

func newJourneyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "journey [user_id]",
		Short: "Show discovered planets and the next target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			j, err := newClient(apiBase).Journey(ctx, sess.AccessToken, userFromArgs(args))
			if err != nil {
				return err
			}
			renderJourney(j)
			return nil
		},
	}
}

func newDiscoverCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "discover [planet_id]",
		Short: "Spend fuel to discover a planet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			planetID, err := int64FromArgOrPrompt(args, 0, "Planet ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Discover(ctx, sess.AccessToken, planetID)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Discovered %s! +%s fuel bonus.", out.Planet.Name, comma(out.BonusReward)))
			printInfo(fmt.Sprintf("Fuel: %s", comma(out.NewFuelTotal)))
			return nil
		},
	}
}

func newShopCmd(apiBase *string) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "shop",
		Short: "Browse spacecraft upgrades",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			category = strings.ToLower(strings.TrimSpace(category))
			if category != "" {
				if err := game.ValidateCategory(category); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			items, err := newClient(apiBase).Shop(ctx, sess.AccessToken, category)
			if err != nil {
				return err
			}
			renderShop(items)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Filter by category ("+strings.Join(game.Categories, ", ")+")")
	return cmd
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [upgrade_id]",
		Short: "Purchase an upgrade",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			upgradeID, err := int64FromArgOrPrompt(args, 0, "Upgrade ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Purchase(ctx, sess.AccessToken, upgradeID)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Purchased %s for %s fuel.", out.Upgrade, comma(out.Cost)))
			printInfo(fmt.Sprintf("Remaining fuel: %s", comma(out.RemainingFuel)))
			return nil
		},
	}
}

func newShipCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "ship [user_id]",
		Aliases: []string{"spacecraft"},
		Short:   "Show owned upgrades and the active multiplier",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			s, err := newClient(apiBase).Spacecraft(ctx, sess.AccessToken, userFromArgs(args))
			if err != nil {
				return err
			}
			renderSpacecraft(s)
			return nil
		},
	}
}

func newEquipCmd(apiBase *string, equip bool) *cobra.Command {
	use, short, verb := "equip [upgrade_id]", "Equip an owned upgrade", "Equipped"
	if !equip {
		use, short, verb = "unequip [upgrade_id]", "Unequip an owned upgrade", "Unequipped"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			upgradeID, err := int64FromArgOrPrompt(args, 0, "Upgrade ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).Toggle(ctx, sess.AccessToken, upgradeID, equip); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s upgrade %d.", verb, upgradeID))
			return nil
		},
	}
}

func newAchievementsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "achievements [user_id]",
		Short: "Show achievement progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			b, err := newClient(apiBase).Achievements(ctx, sess.AccessToken, userFromArgs(args))
			if err != nil {
				return err
			}
			renderAchievements(b)
			return nil
		},
	}
}

func newChallengesCmd(apiBase *string) *cobra.Command {
	challenges := &cobra.Command{
		Use:     "challenges",
		Aliases: []string{"challenge"},
		Short:   "Challenge commands",
	}
	challenges.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			views, err := newClient(apiBase).Challenges(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderChallenges(views, sess.UserID)
			return nil
		},
	})
	challenges.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			desc, err := promptRequired("Description")
			if err != nil {
				return err
			}
			points, err := promptInt64("Points", 1, game.ChallengePointsCap)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			c, err := newClient(apiBase).CreateChallenge(ctx, sess.AccessToken, desc, points)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Created challenge %d worth %d points.", c.ID, c.Points))
			return nil
		},
	})
	challenges.AddCommand(&cobra.Command{
		Use:   "update [challenge_id]",
		Short: "Edit a challenge you created",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			id, err := int64FromArgOrPrompt(args, 0, "Challenge ID")
			if err != nil {
				return err
			}
			desc, err := promptRequired("Description")
			if err != nil {
				return err
			}
			points, err := promptInt64("Points", 1, game.ChallengePointsCap)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := newClient(apiBase).UpdateChallenge(ctx, sess.AccessToken, id, desc, points); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Updated challenge %d.", id))
			return nil
		},
	})
	challenges.AddCommand(&cobra.Command{
		Use:   "delete [challenge_id]",
		Short: "Delete a challenge you created",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			id, err := int64FromArgOrPrompt(args, 0, "Challenge ID")
			if err != nil {
				return err
			}
			confirm, err := promptChoice("Delete challenge "+strconv.FormatInt(id, 10)+"?", []string{"yes", "no"}, "no")
			if err != nil {
				return err
			}
			if confirm != "yes" {
				printInfo("Cancelled.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).DeleteChallenge(ctx, sess.AccessToken, id); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Deleted challenge %d.", id))
			return nil
		},
	})
	challenges.AddCommand(&cobra.Command{
		Use:   "complete [challenge_id]",
		Short: "Log a challenge completion and earn fuel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			id, err := int64FromArgOrPrompt(args, 0, "Challenge ID")
			if err != nil {
				return err
			}
			details, err := promptRequired("What did you do")
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CompleteChallenge(ctx, sess.AccessToken, id, details, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         "POST",
					Path:           cl.CompletionPath(id),
					Body:           map[string]any{"details": details},
					IdempotencyKey: idem,
				})
			}
			printSuccess(fmt.Sprintf("Completed! +%s fuel (%sx).", comma(out.Reward), out.Multiplier.StringFixed(2)))
			printInfo(fmt.Sprintf("Fuel: %s", comma(out.Points)))
			return nil
		},
	})
	var mine bool
	completions := &cobra.Command{
		Use:   "completions [challenge_id]",
		Short: "Show who completed a challenge",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			id, err := int64FromArgOrPrompt(args, 0, "Challenge ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Completions(ctx, sess.AccessToken, id, mine)
			if err != nil {
				return err
			}
			renderCompletions(rows)
			return nil
		},
	}
	completions.Flags().BoolVar(&mine, "mine", false, "Only your own completions")
	challenges.AddCommand(completions)
	return challenges
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Top pilots by fuel",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Leaderboard(ctx, sess.AccessToken, limit)
			if err != nil {
				return err
			}
			renderLeaderboard(rows, sess.UserID)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", game.DefaultLeaderboardLimit, "Number of rows")
	return cmd
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay completions queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd, apiBase)
			if err != nil {
				return err
			}
			q, err := openQueue()
			if err != nil {
				return err
			}
			queue, err := q.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining, replayed, rejected := syncq.Replay(queue, func(c syncq.Command) syncq.Outcome {
				_, err := client.Do(ctx, c.Method, c.Path, sess.AccessToken, c.Body, c.IdempotencyKey)
				var apiErr *cl.APIError
				switch {
				case err == nil:
					return syncq.Replayed
				case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
					// the server already applied this idempotency key
					return syncq.Replayed
				case apiErr != nil:
					printError(fmt.Sprintf("Dropped %s %s: %v", c.Method, c.Path, err))
					return syncq.Rejected
				default:
					printWarn(fmt.Sprintf("Still offline for %s %s: %v", c.Method, c.Path, err))
					return syncq.Retry
				}
			})
			if err := q.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", replayed, rejected, len(remaining)))
			return nil
		},
	}
}

// queueOnNetworkError keeps writes that never reached the server so `xpl sync`
// can replay them with the same idempotency key.
func queueOnNetworkError(err error, q syncq.Command) error {
	if err == nil {
		return nil
	}
	if cl.IsAPIError(err) {
		return err
	}
	queue, qerr := openQueue()
	if qerr == nil {
		qerr = queue.Push(q)
	}
	if qerr != nil {
		return fmt.Errorf("request failed: %w (queue: %v)", err, qerr)
	}
	printWarn("Server unreachable. Completion queued; run `xpl sync` when back online.")
	return nil
}

func userFromArgs(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(args[0])
	}
	return ""
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.TrimSpace(args[idx]), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1, 0)
}
