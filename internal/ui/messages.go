// Package ui provides the interactive Bubble Tea shell for civicwatch.
package ui

import "github.com/abelbrown/civicwatch/internal/analysis"

// AnalysisComplete is sent when the news analysis finishes.
type AnalysisComplete struct {
	Report analysis.Report
	Err    error
}

// AnswerReady is sent when a citizen question has been answered.
type AnswerReady struct {
	Answer analysis.Answer
	Err    error
}
