package models

import "time"

type ScanSummary struct {
	Domain        string         `json:"domain" yaml:"domain"`
	StartTime     time.Time      `json:"start_time" yaml:"start_time"`
	EndTime       time.Time      `json:"end_time" yaml:"end_time"`
	Duration      time.Duration  `json:"duration" yaml:"duration"`
	TotalRequests int64          `json:"total_requests" yaml:"total_requests"`
	DelaysApplied int64          `json:"delays_applied" yaml:"delays_applied"`
	AchievedRate  float64        `json:"achieved_rate" yaml:"achieved_rate"`
	TargetRate    int            `json:"target_rate" yaml:"target_rate"`
	WordlistSize  int            `json:"wordlist_size" yaml:"wordlist_size"`
	WordlistRan   bool           `json:"wordlist_ran" yaml:"wordlist_ran"`
	Found         int            `json:"found" yaml:"found"`
	Total         int            `json:"total" yaml:"total"`
	FoundBySource map[string]int `json:"found_by_source" yaml:"found_by_source"`
	Fingerprint   string         `json:"fingerprint" yaml:"fingerprint"`
}

func (s ScanSummary) ActivePercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Found) / float64(s.Total) * 100
}

type ScanResult struct {
	Summary ScanSummary       `json:"summary" yaml:"summary"`
	Results []DiscoveryResult `json:"results" yaml:"results"`
}
