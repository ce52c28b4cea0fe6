package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/events"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification debugging commands",
	Long:  `Publish notifications to the configured broker or watch what a recipient receives`,
}

var publishNotificationCmd = &cobra.Command{
	Use:   "publish [TaskAssigned|TaskCompleted|TaskCommented]",
	Short: "Publish a notification to one recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := buildEvent(events.Kind(args[0]), notifyRecipient, notifyTask, notifyTitle, notifyActor)
		if err != nil {
			return err
		}
		return withHub(cmd.Context(), func(ctx context.Context, hub *notification.Hub) error {
			if err := hub.Publish(ctx, ev); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			logger.L().Info("notification published", "event_id", ev.ID, "kind", ev.Kind, "recipient_id", ev.RecipientID)
			return nil
		})
	},
}

var tapNotificationCmd = &cobra.Command{
	Use:   "tap",
	Short: "Print every notification addressed to a recipient",
	RunE: func(cmd *cobra.Command, args []string) error {
		if notifyRecipient <= 0 {
			return errors.New("--recipient is required")
		}
		return withHub(cmd.Context(), func(ctx context.Context, hub *notification.Hub) error {
			stream, err := hub.Subscribe(ctx, notifyRecipient)
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer stream.Close()

			logger.L().Info("tapping notifications", "recipient_id", notifyRecipient)
			enc := json.NewEncoder(os.Stdout)
			for {
				ev, err := stream.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				if err := enc.Encode(ev.Message()); err != nil {
					return err
				}
			}
		})
	},
}

var (
	notifyRecipient int64
	notifyTask      int64
	notifyTitle     string
	notifyActor     string
)

func buildEvent(kind events.Kind, recipientID, taskID int64, title, actor string) (events.NotificationEvent, error) {
	switch kind {
	case events.KindTaskAssigned:
		return events.NewTaskAssignedEvent(recipientID, taskID, title), nil
	case events.KindTaskCompleted:
		return events.NewTaskCompletedEvent(recipientID, taskID, title, actor), nil
	case events.KindTaskCommented:
		return events.NewTaskCommentedEvent(recipientID, taskID, title, actor), nil
	}
	return events.NotificationEvent{}, fmt.Errorf("unknown notification kind %q", kind)
}

// withHub runs fn against a hub on the configured broker until fn returns or
// the process is interrupted.
func withHub(parent context.Context, fn func(ctx context.Context, hub *notification.Hub) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.InitWithLevel(cfg.Observability.Logging.Env, cfg.Observability.Logging.Level)
	lg := logger.L()

	b, err := initBroker(ctx, cfg.Broker, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	defer b.Close()

	hub := notification.NewHub(b, nil, notification.HubConfig{
		SessionBufferSize: cfg.Notification.SessionBufferSize,
		DeliveryRetries:   cfg.Notification.DeliveryRetries,
		RetryBaseDelay:    cfg.Notification.RetryBaseDelay,
	}, lg)
	defer hub.Close()

	return fn(ctx, hub)
}

func init() {
	notifyCmd.PersistentFlags().Int64Var(&notifyRecipient, "recipient", 0, "recipient user id")
	publishNotificationCmd.Flags().Int64Var(&notifyTask, "task", 0, "task id carried by the notification")
	publishNotificationCmd.Flags().StringVar(&notifyTitle, "title", "test task", "task title used in the summary")
	publishNotificationCmd.Flags().StringVar(&notifyActor, "by", "cli", "actor name used in the summary")

	notifyCmd.AddCommand(publishNotificationCmd)
	notifyCmd.AddCommand(tapNotificationCmd)

	rootCmd.AddCommand(notifyCmd)
}
