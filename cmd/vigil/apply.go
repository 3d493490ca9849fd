package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vigilhq/vigil/pkg/auth"
	"github.com/vigilhq/vigil/pkg/storage"
	"github.com/vigilhq/vigil/pkg/task"
	"github.com/vigilhq/vigil/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a configuration file",
	Long: `Create monitoring resources from a YAML file.

Examples:
  # Register an HTTP monitor
  vigil apply -f monitor.yaml --org 7f9c24e8-...

  # Register a scheduled task
  vigil apply -f nightly-backup.yaml --org 7f9c24e8-...`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	applyCmd.Flags().String("org", "", "Organization ID (required)")
	_ = applyCmd.MarkFlagRequired("file")
	_ = applyCmd.MarkFlagRequired("org")

	rootCmd.AddCommand(applyCmd)
}

// Resource is the generic YAML envelope; Spec is decoded per Kind.
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       yaml.Node        `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// Durations are expressed in whole seconds, matching how the schema
// stores them.
type monitorSpec struct {
	URL                           string            `yaml:"url"`
	IntervalSeconds               int64             `yaml:"intervalSeconds"`
	RequestTimeoutSeconds         int64             `yaml:"requestTimeoutSeconds"`
	RequestHeaders                map[string]string `yaml:"requestHeaders,omitempty"`
	DowntimeConfirmationThreshold int32             `yaml:"downtimeConfirmationThreshold"`
	RecoveryConfirmationThreshold int32             `yaml:"recoveryConfirmationThreshold"`
	Notifications                 notificationSpec  `yaml:"notifications"`
}

type taskSpec struct {
	CronSchedule            *string          `yaml:"cronSchedule,omitempty"`
	StartWindowSeconds      int64            `yaml:"startWindowSeconds"`
	LatenessWindowSeconds   int64            `yaml:"latenessWindowSeconds"`
	HeartbeatTimeoutSeconds int64            `yaml:"heartbeatTimeoutSeconds"`
	Notifications           notificationSpec `yaml:"notifications"`
}

type notificationSpec struct {
	Email bool `yaml:"email"`
	Push  bool `yaml:"push"`
	SMS   bool `yaml:"sms"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	orgFlag, _ := cmd.Flags().GetString("org")

	orgID, err := uuid.Parse(orgFlag)
	if err != nil {
		return fmt.Errorf("invalid organization id: %v", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	var resource Resource
	if err := yaml.Unmarshal(data, &resource); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}

	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	switch resource.Kind {
	case "HttpMonitor":
		return applyMonitor(cmd, e, orgID, &resource)
	case "Task":
		return applyTask(cmd, e, orgID, &resource)
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applyMonitor(cmd *cobra.Command, e *engine, orgID uuid.UUID, resource *Resource) error {
	var spec monitorSpec
	if err := resource.Spec.Decode(&spec); err != nil {
		return fmt.Errorf("failed to parse spec: %v", err)
	}
	if spec.URL == "" {
		return fmt.Errorf("monitor url is required")
	}
	interval := time.Duration(spec.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := time.Duration(spec.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if spec.DowntimeConfirmationThreshold < 1 {
		spec.DowntimeConfirmationThreshold = 1
	}
	if spec.RecoveryConfirmationThreshold < 1 {
		spec.RecoveryConfirmationThreshold = 1
	}

	now := time.Now().UTC()
	m := &types.HttpMonitor{
		OrganizationID:                orgID,
		ID:                            uuid.New(),
		CreatedAt:                     now,
		URL:                           spec.URL,
		Interval:                      interval,
		RequestTimeout:                timeout,
		RequestHeaders:                spec.RequestHeaders,
		DowntimeConfirmationThreshold: spec.DowntimeConfirmationThreshold,
		RecoveryConfirmationThreshold: spec.RecoveryConfirmationThreshold,
		EmailNotificationEnabled:      spec.Notifications.Email,
		PushNotificationEnabled:       spec.Notifications.Push,
		SMSNotificationEnabled:        spec.Notifications.SMS,
		Metadata:                      resource.Metadata.Labels,
		Status:                        types.MonitorStatusUnknown,
		NextPingAt:                    &now,
	}
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}
	if resource.Metadata.Name != "" {
		m.Metadata["name"] = resource.Metadata.Name
	}

	ctx := cmd.Context()
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.Monitors().Create(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("failed to create monitor: %v", err)
	}
	fmt.Printf("monitor created: %s (ID: %s)\n", m.URL, m.ID)
	return nil
}

func applyTask(cmd *cobra.Command, e *engine, orgID uuid.UUID, resource *Resource) error {
	var spec taskSpec
	if err := resource.Spec.Decode(&spec); err != nil {
		return fmt.Errorf("failed to parse spec: %v", err)
	}
	if resource.Metadata.Name == "" {
		return fmt.Errorf("task name is required")
	}
	heartbeat := time.Duration(spec.HeartbeatTimeoutSeconds) * time.Second
	if heartbeat <= 0 {
		heartbeat = 5 * time.Minute
	}

	coordinator := task.NewCoordinator(e.store, e.materializer, e.broker)
	t, err := coordinator.CreateTask(cmd.Context(), auth.Internal(orgID), task.CreateTaskCommand{
		ID:                       resource.Metadata.Name,
		CronSchedule:             spec.CronSchedule,
		StartWindow:              time.Duration(spec.StartWindowSeconds) * time.Second,
		LatenessWindow:           time.Duration(spec.LatenessWindowSeconds) * time.Second,
		HeartbeatTimeout:         heartbeat,
		EmailNotificationEnabled: spec.Notifications.Email,
		PushNotificationEnabled:  spec.Notifications.Push,
		SMSNotificationEnabled:   spec.Notifications.SMS,
		Metadata:                 resource.Metadata.Labels,
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %v", err)
	}
	fmt.Printf("task created: %s\n", t.ID)
	return nil
}
