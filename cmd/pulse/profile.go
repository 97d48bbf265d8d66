package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/pulse/internal/domain/model"
)

var profileFile string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage weight profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List weight profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := startService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Stop()

		profiles, err := svc.ListWeightProfiles(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tACTIVE\tCATEGORIES\tCREATED")
		for _, p := range profiles {
			fmt.Fprintf(w, "%s\t%t\t%d\t%s\n", p.Version, p.Active, len(p.Weights), p.CreatedAt.Format(model.DateLayout))
		}
		return w.Flush()
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an inactive weight profile from a YAML document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := readProfile(profileFile)
		if err != nil {
			return err
		}
		svc, err := startService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Stop()

		created, err := svc.CreateWeightProfile(cmd.Context(), p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created profile %s with %d categories\n", created.Version, len(created.Weights))
		return nil
	},
}

var profileActivateCmd = &cobra.Command{
	Use:   "activate <version>",
	Short: "Make a weight profile the only active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := startService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Stop()

		if err := svc.ActivateWeightProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activated profile %s\n", args[0])
		return nil
	},
}

// readProfile decodes one weight profile from a YAML file.
func readProfile(path string) (model.WeightProfile, error) {
	var p model.WeightProfile
	f, err := os.Open(path)
	if err != nil {
		return p, eris.Wrapf(err, "open profile %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("%w: decode profile %s: %v", model.ErrInvalidInput, path, err)
	}
	return p, nil
}

func init() {
	profileCreateCmd.Flags().StringVarP(&profileFile, "file", "f", "", "profile YAML file")
	_ = profileCreateCmd.MarkFlagRequired("file")
	profileCmd.AddCommand(profileListCmd, profileCreateCmd, profileActivateCmd)
	rootCmd.AddCommand(profileCmd)
}
