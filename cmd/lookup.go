package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shelfline/bookpricer/internal/model"
)

var lookupUserID string

var lookupCmd = &cobra.Command{
	Use:   "lookup <isbn>",
	Short: "Fetch market pricing for a single ISBN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "lookup")
		if err != nil {
			return err
		}
		defer env.Close()

		isbn := args[0]
		data, err := env.Service.GetPricingData(ctx, isbn, lookupUserID)
		if err != nil {
			return err
		}
		if data == nil {
			fmt.Printf("No completed sales found for %s\n", isbn)
			return nil
		}

		printPricing(data)
		return nil
	},
}

func printPricing(data *model.PricingData) {
	p := message.NewPrinter(language.English)

	p.Printf("ISBN:            %s\n", data.ISBN)
	p.Printf("Average price:   $%.2f\n", data.AveragePrice)
	p.Printf("Suggested list:  $%.2f\n", data.ProfitAnalysis.RecommendedListingPrice)
	p.Printf("Confidence:      %s (%d/100)\n", data.Confidence, data.ConfidenceScore)
	p.Printf("Sample:          %d sales, %s to %s\n",
		data.TotalSales,
		data.DateRange.From.Format("2006-01-02"),
		data.DateRange.To.Format("2006-01-02"))
	p.Printf("Velocity:        %.1f sales/week (%s demand)\n",
		data.MarketVelocity.SalesPerWeek, data.MarketVelocity.DemandLevel)
	p.Printf("Trend:           %s (%+.1f%% weekly)\n",
		data.Trends.PriceDirection, data.Trends.WeeklyChange)

	if len(data.ConditionPricing) == 0 {
		return
	}
	p.Printf("\nBy condition:\n")
	conditions := make([]model.Condition, 0, len(data.ConditionPricing))
	for c := range data.ConditionPricing {
		conditions = append(conditions, c)
	}
	sort.Slice(conditions, func(i, j int) bool { return conditions[i] < conditions[j] })
	for _, c := range conditions {
		stats := data.ConditionPricing[c]
		p.Printf("  %-12s $%.2f avg ($%.2f-$%.2f, %d sold)\n",
			c, stats.AveragePrice, stats.PriceRange.Min, stats.PriceRange.Max, stats.Count)
	}
}

func init() {
	lookupCmd.Flags().StringVar(&lookupUserID, "user", "", "user id for cache settings")
	rootCmd.AddCommand(lookupCmd)
}
