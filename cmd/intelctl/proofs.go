package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"intel-registry/internal/registry"
	"intel-registry/sdk/go/intelreg"
)

func newRegisterCmd(c *cli) *cobra.Command {
	var req intelreg.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register <proof-id>",
		Short: "Register a proof commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ProofID = args[0]
			if _, err := registry.ParseProofType(req.ProofType); err != nil {
				return err
			}
			client, err := c.client()
			if err != nil {
				return err
			}
			proof, err := client.RegisterProof(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), proof)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Commitment, "commitment", "", "commitment hash (64 hex)")
	f.StringVar(&req.ProofType, "type", registry.ProofTypeGenericCommitment.String(), "proof type name")
	f.StringVar(&req.SourceHash, "source", "", "source hash (64 hex)")
	f.StringVar(&req.IntelHash, "intel", "", "intel hash (64 hex)")
	f.StringVar(&req.PublicInputsHash, "inputs", "", "public inputs hash (64 hex)")
	f.StringVar(&req.Metadata, "metadata", "", "optional metadata")
	for _, name := range []string{"commitment", "source", "intel", "inputs"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newGetCmd(c *cli) *cobra.Command {
	var withAttestations bool
	cmd := &cobra.Command{
		Use:   "get <proof-id>",
		Short: "Show a proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			if withAttestations {
				full, err := client.GetProofWithAttestations(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), full)
			}
			proof, err := client.GetProof(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), proof)
		},
	}
	cmd.Flags().BoolVarP(&withAttestations, "attestations", "a", false, "include attestations")
	return cmd
}

func newAttestCmd(c *cli) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "attest <proof-id> <confidence>",
		Short: "Submit or replace your attestation on a proof",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			confidence, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("confidence must be an integer: %w", err)
			}
			client, err := c.client()
			if err != nil {
				return err
			}
			result, err := client.Attest(cmd.Context(), args[0], confidence, note)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "optional note")
	return cmd
}

func newRefuteCmd(c *cli) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "refute <proof-id>",
		Short: "Refute a proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			proof, err := client.RefuteProof(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), proof)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the refutation")
	return cmd
}

func newVerifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <proof-id> <commitment>",
		Short: "Check a commitment against the registered one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			ok, err := client.VerifyCommitment(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), map[string]any{"proof_id": args[0], "valid": ok})
		},
	}
}

func newRecentCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently registered proofs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			proofs, err := client.GetRecentProofs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), proofs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of proofs")
	return cmd
}

func newIntelCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "intel <intel-hash>",
		Short: "List proofs linked to an intel hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			proofs, err := client.GetIntelProofs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), proofs)
		},
	}
}

func newProofTypesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "proof-types",
		Short: "List the accepted proof types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := make([]string, 0, len(registry.ProofTypes()))
			for _, t := range registry.ProofTypes() {
				names = append(names, t.String())
			}
			return c.print(cmd.OutOrStdout(), names)
		},
	}
}
