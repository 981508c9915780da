// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/services/verifier/scoring"
)

// The score subcommands are file-driven: each one ingests a metrics
// JSON file into a fresh engine, then reports on the result. That
// keeps scoring deterministic and auditable; the same file always
// yields the same scores.

func runScoreIngest(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	count, err := loadMetrics(a, args[0])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	agents := a.scorer.AgentIDs()
	if outputJSON {
		printJSON(map[string]any{"metrics_ingested": count, "agents": agents})
		return
	}
	fmt.Printf("Ingested %d metrics across %d agents\n", count, len(agents))
}

func runScoreShow(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	if _, err := loadMetrics(a, args[0]); err != nil {
		log.Fatalf("Error: %v", err)
	}
	score, err := a.scorer.GetAgentScore(args[1])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if outputJSON {
		printJSON(score)
		return
	}
	printAgentScore(score)
}

func runScoreTop(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	if _, err := loadMetrics(a, args[0]); err != nil {
		log.Fatalf("Error: %v", err)
	}
	top := a.scorer.GetTopPerformers(topLimit)
	if outputJSON {
		printJSON(top)
		return
	}
	for i, s := range top {
		fmt.Printf("%2d. %-24s %.3f (risk: %s)\n", i+1, s.AgentID, s.OverallScore, s.Risk.Level)
	}
}

func runScoreRisk(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()

	if _, err := loadMetrics(a, args[0]); err != nil {
		log.Fatalf("Error: %v", err)
	}
	level := scoring.RiskLevel(args[1])
	agents := a.scorer.GetAgentsByRiskLevel(level)
	if outputJSON {
		printJSON(agents)
		return
	}
	if len(agents) == 0 {
		fmt.Printf("No agents at risk level %q\n", level)
		return
	}
	for _, s := range agents {
		fmt.Printf("%-24s %.3f\n", s.AgentID, s.OverallScore)
		for _, f := range s.Risk.Factors {
			fmt.Printf("    - %s (severity %.2f)\n", f.Name, f.Severity)
		}
	}
}

func printAgentScore(s *scoring.AgentScore) {
	fmt.Printf("Agent %s: %.3f\n", s.AgentID, s.OverallScore)
	fmt.Printf("  accuracy=%.3f reliability=%.3f consistency=%.3f efficiency=%.3f adaptability=%.3f\n",
		s.Components.Accuracy, s.Components.Reliability, s.Components.Consistency,
		s.Components.Efficiency, s.Components.Adaptability)
	fmt.Printf("  risk: %s\n", s.Risk.Level)
	for _, f := range s.Risk.Factors {
		fmt.Printf("    - %s (severity %.2f): %s\n", f.Name, f.Severity, f.Description)
	}
	for _, t := range s.Trends {
		fmt.Printf("  trend %s: %s (slope %.4f/h over %d samples, confidence %.2f)\n",
			t.MetricType, t.Direction, t.Slope, t.SampleCount, t.Confidence)
	}
}
