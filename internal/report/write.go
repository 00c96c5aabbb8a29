package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Write renders r in the named format.
func Write(w io.Writer, r *Report, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return WriteText(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	default:
		return fmt.Errorf("unknown report format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
}

func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func WriteText(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Delivery report (%s)\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(tw, "Orders: %d\tRatings: %d\n", r.TotalOrders, r.TotalRatings)

	section(tw, "Order status by platform")
	writeBreakdowns(tw, r.Statuses)

	section(tw, "Delivery type mix")
	writeBreakdowns(tw, r.DeliveryMix)

	section(tw, "Prep time by restaurant")
	if len(r.PrepTimes) == 0 {
		fmt.Fprintln(tw, "  (no data)")
	} else {
		fmt.Fprintln(tw, "  PLATFORM\tRESTAURANT\tORDERS\tAVG MIN\tMAX MIN")
		for _, p := range r.PrepTimes {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\t%d\n", p.Platform, p.Restaurant, p.Orders, p.AvgMinutes.StringFixed(1), p.MaxMinutes)
		}
	}

	section(tw, "Ratings by restaurant")
	if len(r.Ratings) == 0 {
		fmt.Fprintln(tw, "  (no data)")
	} else {
		fmt.Fprintln(tw, "  PLATFORM\tRESTAURANT\tRATINGS\tAVERAGE\tLOW (<=2)")
		for _, rt := range r.Ratings {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\t%s%%\n", rt.Platform, rt.Restaurant, rt.Ratings, rt.Average.StringFixed(2), rt.LowShare.StringFixed(1))
		}
	}

	section(tw, "Recent jobs")
	if len(r.RecentJobs) == 0 {
		fmt.Fprintln(tw, "  (no data)")
	} else {
		fmt.Fprintln(tw, "  STARTED\tINTEGRATION\tSTATUS\tROWS\tINSERTED\tERRORS\tFILE")
		for _, j := range r.RecentJobs {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
				j.StartedAt.UTC().Format("2006-01-02 15:04"),
				j.Integration, j.Status,
				j.ProcessedRows, j.TotalRows,
				j.InsertedRows, j.ErrorRows,
				j.FilePath)
		}
	}

	return tw.Flush()
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", title)
}

func writeBreakdowns(w io.Writer, bs []Breakdown) {
	if len(bs) == 0 {
		fmt.Fprintln(w, "  (no data)")
		return
	}
	for _, b := range bs {
		fmt.Fprintf(w, "  %s\t(%d)\n", b.Platform, b.Total)
		for _, s := range b.Shares {
			fmt.Fprintf(w, "    %s\t%d\t%s%%\n", s.Label, s.Count, s.Percent.StringFixed(1))
		}
	}
}
