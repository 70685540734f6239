package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"checkout/api/internal/asaas"
	"checkout/api/internal/checkout"
	"checkout/api/internal/dedup"
	"checkout/api/internal/order"
	"checkout/api/internal/reconcile"
	"checkout/api/internal/repository"

	"github.com/spf13/cobra"
)

// SourceCLI marks status changes made from the command line.
const SourceCLI = "cli"

func ordersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Consulta e corrige pedidos",
	}
	cmd.AddCommand(ordersListCmd(a))
	cmd.AddCommand(ordersShowCmd(a))
	cmd.AddCommand(ordersSetStatusCmd(a))
	cmd.AddCommand(ordersRetryChargeCmd(a))
	cmd.AddCommand(ordersWatchCmd(a))
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id de pedido inválido: %q", s)
	}
	return id, nil
}

func ordersListCmd(a *app) *cobra.Command {
	var method, status string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lista pedidos (mais recentes primeiro)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repository.OrderFilter{Limit: limit}
			if method != "" {
				m, err := order.ParseMethod(method)
				if err != nil {
					return err
				}
				f.Method = m
			}
			if status != "" {
				f.Status = order.ResolveStatus(status)
			}

			orders, err := a.store.ListOrders(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("listar pedidos: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), orders)
			}
			printOrders(cmd.OutOrStdout(), orders)
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "filtra por método (CARD, PIX)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "filtra por status (PENDING, PAID, DENIED)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "quantidade máxima de pedidos")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "saída em JSON")
	return cmd
}

func ordersShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Mostra um pedido e seu histórico de status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			o, err := a.store.OrderByID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("carregar pedido: %w", err)
			}
			if o == nil {
				return fmt.Errorf("pedido %d não encontrado", id)
			}
			history, err := a.store.StatusHistory(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("carregar histórico: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pedido %d\n", o.ID)
			fmt.Fprintf(out, "  Cliente:  %s <%s>\n", o.Customer.Name, o.Customer.Email)
			fmt.Fprintf(out, "  Produto:  %s (R$ %s)\n", o.ProductName, o.Price.StringFixed(2))
			fmt.Fprintf(out, "  Método:   %s\n", o.Method)
			fmt.Fprintf(out, "  Status:   %s\n", o.Status)
			if o.ChargeID != "" {
				fmt.Fprintf(out, "  Cobrança: %s\n", o.ChargeID)
			}
			if o.Card != nil {
				fmt.Fprintf(out, "  Cartão:   %s final %s\n", o.Card.Brand, o.Card.Last4)
			}
			if o.Pix != nil && !o.Pix.ExpirationDate.IsZero() {
				fmt.Fprintf(out, "  PIX até:  %s\n", o.Pix.ExpirationDate.Format(time.RFC3339))
			}
			fmt.Fprintln(out, "\nHistórico:")
			for _, c := range history {
				from := string(c.OldStatus)
				if from == "" {
					from = "-"
				}
				fmt.Fprintf(out, "  %s  %-7s -> %-7s [%s] %s\n", c.CreatedAt.Format(time.RFC3339), from, c.NewStatus, c.Source, c.Reason)
			}
			return nil
		},
	}
}

func ordersSetStatusCmd(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "set-status <id> <PAID|DENIED>",
		Short: "Força o status final de um pedido",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status := order.ResolveStatus(args[1])
			if !status.IsTerminal() {
				return fmt.Errorf("status deve ser PAID ou DENIED, recebido %q", args[1])
			}
			if reason == "" {
				reason = fmt.Sprintf("ajuste manual via CLI (%s)", args[1])
			}

			applied, err := a.store.CorrectStatus(cmd.Context(), id, status, repository.StatusChange{
				Reason: reason,
				Source: SourceCLI,
			})
			if err != nil {
				return fmt.Errorf("alterar status do pedido %d: %w", id, err)
			}
			if applied {
				fmt.Fprintf(cmd.OutOrStdout(), "Pedido %d agora está %s\n", id, status)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Pedido %d já estava %s\n", id, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "motivo registrado no histórico")
	return cmd
}

// service builds a checkout service backed by the configured Asaas account.
func (a *app) service() (*checkout.Service, *dedup.Registry) {
	var provider checkout.Provider
	if a.cfg.AsaasAPIKey != "" {
		provider = asaas.NewClient(a.cfg.AsaasAPIKey, a.cfg.AsaasBaseURL)
	}
	registry := dedup.NewRegistry()
	svc := checkout.NewService(a.store, provider, registry, checkout.Options{ProviderTimeout: a.cfg.ProviderTimeout})
	return svc, registry
}

func ordersRetryChargeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-charge <id>",
		Short: "Gera a cobrança PIX de um pedido que ficou sem cobrança",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, registry := a.service()
			defer registry.Close()
			defer svc.Close()

			o, err := svc.RegisterCharge(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("gerar cobrança: %s", checkout.Message(err, err.Error()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pedido %d vinculado à cobrança %s\n", o.ID, o.ChargeID)
			return nil
		},
	}
}

func ordersWatchCmd(a *app) *cobra.Command {
	var interval, timeout time.Duration

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Acompanha um pedido até ser pago, recusado ou expirar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var charges reconcile.ChargeFetcher
			if a.cfg.AsaasAPIKey != "" {
				charges = asaas.NewClient(a.cfg.AsaasAPIKey, a.cfg.AsaasBaseURL)
			}
			loop := reconcile.NewLoop(a.store, reconcile.NewHub(), charges, interval, timeout)

			out, err := loop.Watch(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("acompanhar pedido %d: %w", id, err)
			}
			status := order.StatusPending
			if out.Order != nil {
				status = out.Order.Status
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pedido %d: %s (status %s)\n", id, out.Result, status)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", a.cfg.PollInterval, "intervalo entre consultas")
	cmd.Flags().DurationVar(&timeout, "timeout", a.cfg.PollTimeout, "tempo máximo de espera")
	return cmd
}

func printOrders(w io.Writer, orders []order.Order) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMÉTODO\tSTATUS\tVALOR\tCOBRANÇA\tCRIADO EM")
	for _, o := range orders {
		charge := o.ChargeID
		if charge == "" {
			charge = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Method, o.Status, o.Price.StringFixed(2), charge, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
