package main

import (
	"fmt"

	"checkout/api/internal/repository"

	"github.com/spf13/cobra"
)

func settingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Mostra ou altera as configurações do checkout",
	}
	cmd.AddCommand(settingsShowCmd(a))
	cmd.AddCommand(settingsSetCmd(a))
	return cmd
}

func settingsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Mostra as configurações atuais",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := repository.GetSettings(cmd.Context(), a.db)
			if err != nil {
				return fmt.Errorf("carregar configurações: %w", err)
			}
			printSettings(cmd, s)
			return nil
		},
	}
}

func settingsSetCmd(a *app) *cobra.Command {
	var asaasEnabled, allowCard, allowPix, manualCard, sandbox bool
	var manualStatus string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Altera apenas as configurações informadas",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := repository.GetSettings(cmd.Context(), a.db)
			if err != nil {
				return fmt.Errorf("carregar configurações: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("asaas-enabled") {
				s.AsaasEnabled = asaasEnabled
			}
			if flags.Changed("allow-card") {
				s.AllowCreditCard = allowCard
			}
			if flags.Changed("allow-pix") {
				s.AllowPix = allowPix
			}
			if flags.Changed("manual-card") {
				s.ManualCardProcessing = manualCard
			}
			if flags.Changed("manual-card-status") {
				s.ManualCardStatus = manualStatus
			}
			if flags.Changed("sandbox") {
				s.SandboxMode = sandbox
			}
			if err := repository.SaveSettings(cmd.Context(), a.db, *s); err != nil {
				return fmt.Errorf("salvar configurações: %w", err)
			}
			printSettings(cmd, s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asaasEnabled, "asaas-enabled", false, "habilita o provedor de pagamento")
	cmd.Flags().BoolVar(&allowCard, "allow-card", false, "aceita cartão de crédito")
	cmd.Flags().BoolVar(&allowPix, "allow-pix", false, "aceita PIX")
	cmd.Flags().BoolVar(&manualCard, "manual-card", false, "aplica status manual a pedidos de cartão")
	cmd.Flags().StringVar(&manualStatus, "manual-card-status", "", "status manual global (ex.: APPROVED, REJECTED, ANALYSIS)")
	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "modo sandbox")
	return cmd
}

func printSettings(cmd *cobra.Command, s *repository.Settings) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "asaas_enabled:          %t\n", s.AsaasEnabled)
	fmt.Fprintf(out, "allow_credit_card:      %t\n", s.AllowCreditCard)
	fmt.Fprintf(out, "allow_pix:              %t\n", s.AllowPix)
	fmt.Fprintf(out, "manual_card_processing: %t\n", s.ManualCardProcessing)
	fmt.Fprintf(out, "manual_card_status:     %s\n", s.ManualCardStatus)
	fmt.Fprintf(out, "sandbox_mode:           %t\n", s.SandboxMode)
}
