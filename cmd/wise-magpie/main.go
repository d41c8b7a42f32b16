// Command wise-magpie runs and controls the wise-magpie daemon: an
// opportunistic scheduler that dispatches queued background tasks to the
// Assistant CLI during detected idle periods.
package main

func main() {
	Execute()
}
