//go:build !debug

package workqueue

func laneStatSteal()     {}
func laneStatEmptyScan() {}
