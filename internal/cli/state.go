package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/eval"
	"github.com/stackplan-io/stackplan/internal/ir"
	"github.com/stackplan-io/stackplan/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage stackplan state",
	Long:  `Commands for inspecting and modifying stackplan state.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show attributes of a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateMvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move a resource to a new address",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateMv,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Remove a resource from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateMvCmd)
	stateCmd.AddCommand(stateRmCmd)
}

// parseResourceAddress splits a "type.name" address at the last dot, since
// resource types themselves contain dots (aws:EC2.Instance).
func parseResourceAddress(addr string) (typ, name string, err error) {
	idx := strings.LastIndex(addr, ".")
	if idx <= 0 || idx == len(addr)-1 {
		return "", "", fmt.Errorf("invalid resource address %q, expected format type.name", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}

func loadStateMgr() (state.Backend, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	evaluator := eval.NewEvaluator(wd)
	return openState(wd, evaluator)
}

func runStateList(cmd *cobra.Command, args []string) error {
	mgr, err := loadStateMgr()
	if err != nil {
		return err
	}

	s, err := mgr.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(s.Resources) == 0 {
		fmt.Println("No resources in state.")
		return nil
	}

	fmt.Printf("State version: %d, serial: %d, lineage: %s\n\n", s.Version, s.Serial, s.Lineage)
	for _, res := range s.Resources {
		fmt.Printf("  %s.%s (provider: %s)\n", res.Type, res.Name, res.Provider)
	}
	fmt.Printf("\nTotal: %d resource(s)\n", len(s.Resources))

	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	mgr, err := loadStateMgr()
	if err != nil {
		return err
	}

	s, err := mgr.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	target := args[0]
	for _, res := range s.Resources {
		addr := fmt.Sprintf("%s.%s", res.Type, res.Name)
		if addr != target {
			continue
		}

		fmt.Printf("# %s\n", addr)
		fmt.Printf("  provider = %s\n", res.Provider)
		fmt.Printf("  type     = %s\n", res.Type)
		fmt.Printf("  name     = %s\n", res.Name)

		if len(res.Inputs) > 0 {
			fmt.Println("\n  Inputs:")
			for k, v := range res.Inputs {
				fmt.Printf("    %s = %v\n", k, v)
			}
		}

		if len(res.Outputs) > 0 {
			fmt.Println("\n  Outputs:")
			for k, v := range res.Outputs {
				fmt.Printf("    %s = %v\n", k, v)
			}
		}

		if len(res.Dependencies) > 0 {
			fmt.Println("\n  Dependencies:")
			for _, dep := range res.Dependencies {
				fmt.Printf("    %s\n", dep)
			}
		}

		if res.InputsHash != "" {
			fmt.Printf("\n  inputs_hash = %s\n", res.InputsHash)
		}

		return nil
	}

	return fmt.Errorf("resource %s not found in state", target)
}

func runStateMv(cmd *cobra.Command, args []string) error {
	mgr, err := loadStateMgr()
	if err != nil {
		return err
	}

	if err := mgr.Lock(); err != nil {
		return err
	}
	defer mgr.Unlock()

	s, err := mgr.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	src, dst := args[0], args[1]
	found := false

	dstType, dstName, err := parseResourceAddress(dst)
	if err != nil {
		return err
	}

	for _, res := range s.Resources {
		addr := fmt.Sprintf("%s.%s", res.Type, res.Name)
		if addr == src {
			res.Type = dstType
			res.Name = dstName
			found = true
			break
		}
	}

	if !found {
		return fmt.Errorf("resource %s not found in state", src)
	}

	if err := mgr.Write(cmd.Context(), s); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("Moved %s to %s\n", src, dst)
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	mgr, err := loadStateMgr()
	if err != nil {
		return err
	}

	if err := mgr.Lock(); err != nil {
		return err
	}
	defer mgr.Unlock()

	s, err := mgr.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	target := args[0]
	newResources := make([]*ir.ResourceState, 0, len(s.Resources))
	found := false

	for _, res := range s.Resources {
		addr := fmt.Sprintf("%s.%s", res.Type, res.Name)
		if addr == target {
			found = true
			continue
		}
		newResources = append(newResources, res)
	}

	if !found {
		return fmt.Errorf("resource %s not found in state", target)
	}

	s.Resources = newResources
	if err := mgr.Write(cmd.Context(), s); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("Removed %s from state (resource was NOT destroyed)\n", target)
	return nil
}
