// Package scheduler runs callbacks at millisecond offsets from each job's own
// start, with per-job pause and resume.
//
// Every job has a virtual clock that only advances while the job is running.
// Pausing freezes the clock; resuming continues from the frozen value, so a
// job paused for a minute fires its remaining tasks a minute later than it
// otherwise would. Jobs run on their own goroutines and never delay each other.
//
// Completed jobs stay queryable until RemoveJob or ClearCompleted (unless
// Options.DropCompleted is set); removed jobs are forgotten immediately.
package scheduler
