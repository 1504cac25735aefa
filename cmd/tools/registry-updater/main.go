// cmd/tools/registry-updater/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"loan-funnel-workers/internal/common/config"
	"loan-funnel-workers/internal/workers"
	"loan-funnel-workers/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, syncCmd} {
		fs.StringVar(&registryPath, "path", "configs/activity-registry.json", "Path to registry file")
	}

	// Add command flags
	idAdd := addCmd.String("id", "", "Activity ID (e.g., loan-emi-calculate)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Calculate EMI)")
	description := addCmd.String("description", "", "Description")
	category := addCmd.String("category", "", "Category (funnel, verification, loan)")
	taskType := addCmd.String("taskType", "", "Zeebe Task Type (e.g., loan.emi.calculate)")
	version := addCmd.String("version", "1.0.0", "Version")
	implStatus := addCmd.String("status", registry.StatusPlanned, "Implementation Status (planned, in-progress, completed, verified)")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Activity ID to update")
	field := updateCmd.String("field", "", "Field to update (status, version, etc.)")
	value := updateCmd.String("value", "", "New value for the field")

	// Sync command flags
	configPath := syncCmd.String("config", "configs/config.yaml", "Application config used for retry budgets")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		_ = addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *description == "" || *category == "" || *taskType == "" {
			fmt.Println("Error: id, displayName, description, category, and taskType are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		activity := registry.Activity{
			ID:                   *idAdd,
			DisplayName:          *displayName,
			Description:          *description,
			Category:             *category,
			Version:              *version,
			TaskType:             *taskType,
			ImplementationStatus: *implStatus,
			InputSchema:          map[string]interface{}{},
			OutputSchema:         map[string]interface{}{},
			ErrorCodes:           []string{},
			Timeout:              "10s",
			Workflows:            []string{},
			Tags:                 []string{*category},
		}
		if err := addActivity(activity); err != nil {
			fmt.Printf("Error adding activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added activity: %s\n", *idAdd)

	case "update":
		_ = updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateActivity(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated activity %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "sync":
		_ = syncCmd.Parse(os.Args[2:])
		n, err := syncRegistry(*configPath)
		if err != nil {
			fmt.Printf("Registry sync failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Synced %d activities into %s\n", n, registryPath)

	case "help":
		fallthrough
	default:
		help()
	}
}

func loadOrNew() (*registry.ActivityRegistry, error) {
	reg, err := registry.LoadRegistry(registryPath)
	if errors.Is(err, os.ErrNotExist) {
		return registry.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

func addActivity(activity registry.Activity) error {
	reg, err := loadOrNew()
	if err != nil {
		return err
	}
	if _, exists := reg.Find(activity.ID); exists {
		return fmt.Errorf("activity with ID %s already exists", activity.ID)
	}
	reg.Upsert(activity)
	return registry.Save(reg, registryPath)
}

func updateActivity(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	a, found := reg.Find(id)
	if !found {
		return fmt.Errorf("activity with ID %s not found", id)
	}
	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "taskType":
		a.TaskType = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return registry.Save(reg, registryPath)
}

// validateRegistry also requires every worker in the catalog to be listed.
func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	listed := make(map[string]bool, len(reg.Activities))
	for _, a := range reg.Activities {
		listed[a.TaskType] = true
	}
	for _, e := range workers.Catalog() {
		if !listed[e.TaskType] {
			return fmt.Errorf("worker %s (%s) is not in the registry", e.ConfigKey, e.TaskType)
		}
	}

	fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
	return nil
}

func syncRegistry(configPath string) (int, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fmt.Printf("Warning: using worker defaults, config not loaded: %v\n", err)
		cfg = nil
	}
	activities, err := workers.Activities(cfg)
	if err != nil {
		return 0, err
	}

	reg, err := loadOrNew()
	if err != nil {
		return 0, err
	}
	for _, a := range activities {
		reg.Upsert(a)
	}
	if err := reg.Validate(); err != nil {
		return 0, err
	}
	return len(activities), registry.Save(reg, registryPath)
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new activity to the registry
  update   Update an existing activity's field
  validate Validate the registry file against the worker catalog
  sync     Regenerate entries for every worker in the catalog
  help     Show this help message

Examples:
  registry-updater sync -path configs/activity-registry.json -config configs/config.yaml
  registry-updater update -id loan-emi-calculate -field status -value verified
  registry-updater validate -path configs/activity-registry.json

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
