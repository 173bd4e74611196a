package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

func displayResult(w io.Writer, r models.DiagnosisResult, format string) error {
	if format == "json" {
		return writeJSON(w, r)
	}
	renderResult(w, r)
	return nil
}

func displayList(w io.Writer, list []models.DiagnosisResult, format string) error {
	if format == "json" {
		return writeJSON(w, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No diagnoses yet.")
		return nil
	}
	for _, r := range list {
		status := color.GreenString("DIY")
		if r.Blocked {
			status = color.RedString("PRO")
		}
		fmt.Fprintf(w, "%s  %s  %-28s %3.0f/100  %s\n",
			r.ID, formatTime(r.CreatedAt), itemName(r), r.RepairabilityScore, status)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func renderResult(w io.Writer, r models.DiagnosisResult) {
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)

	fmt.Fprintln(w)
	cyan.Fprintf(w, "%s", itemName(r))
	if r.ItemModel != nil && *r.ItemModel != "" {
		fmt.Fprintf(w, " (%s)", *r.ItemModel)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Repairability: %s  confidence %s\n", scoreColor(r.RepairabilityScore).Sprintf("%.0f/100", r.RepairabilityScore), r.RepairabilityConfidence)

	if r.Blocked {
		fmt.Fprintln(w)
		red.Fprintln(w, "STOP: this repair needs a professional.")
		fmt.Fprintf(w, "   %s\n", r.Diagnosis.Safety)
	}

	if len(r.Issues) > 0 {
		fmt.Fprintln(w)
		yellow.Fprintln(w, "Likely issues:")
		for i, is := range r.Issues {
			fmt.Fprintf(w, "   %d. %s (%.0f%%)\n", i+1, is.Problem, is.Probability*100)
		}
	}

	if !r.Blocked {
		d := r.Diagnosis
		if d.Safety != "" {
			fmt.Fprintln(w)
			yellow.Fprintln(w, "Safety:")
			fmt.Fprintf(w, "   %s\n", d.Safety)
		}
		if len(d.Tools) > 0 {
			fmt.Fprintf(w, "\nTools: %s\n", strings.Join(d.Tools, ", "))
		}
		if d.TimeEstimate != nil {
			fmt.Fprintf(w, "Time: about %.0f minutes\n", *d.TimeEstimate)
		}
		if len(d.Steps) > 0 {
			fmt.Fprintln(w)
			green.Fprintln(w, "Steps:")
			for i, s := range d.Steps {
				fmt.Fprintf(w, "   %d. %s\n", i+1, s)
			}
		}
		if len(d.Parts) > 0 {
			fmt.Fprintln(w, "\nParts:")
			for _, p := range d.Parts {
				if p.EstimatedCost != nil {
					fmt.Fprintf(w, "   - %s (~$%.2f)\n", p.Name, *p.EstimatedCost)
				} else {
					fmt.Fprintf(w, "   - %s\n", p.Name)
				}
			}
		}
	}

	if len(r.Tutorials) > 0 {
		fmt.Fprintln(w)
		cyan.Fprintln(w, "Tutorials:")
		for _, t := range r.Tutorials {
			fmt.Fprintf(w, "   - %s\n     %s\n", t.Title, t.URL)
		}
	}

	fmt.Fprintf(w, "\nConfidence %.0f%%", r.Confidence*100)
	if r.ID != "" {
		fmt.Fprintf(w, "  id %s", r.ID)
	}
	fmt.Fprintln(w)
}

func itemName(r models.DiagnosisResult) string {
	if r.ItemName != nil && *r.ItemName != "" {
		return *r.ItemName
	}
	return "Unknown item"
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 70:
		return color.New(color.FgGreen, color.Bold)
	case score >= 40:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func formatTime(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), msg)
}
