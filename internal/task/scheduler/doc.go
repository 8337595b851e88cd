// Package scheduler triggers recurring jobs on cron expressions or fixed
// intervals (github.com/robfig/cron/v3). A job never overlaps with itself:
// a trigger that fires while the previous run is still going is skipped.
package scheduler
