package port

// ItemProgress reports transfer progress of one artifact in a batch.
type ItemProgress struct {
	Index   int
	Key     string
	Percent int
}

// BatchProgress reports aggregate progress after an item attempt finished.
type BatchProgress struct {
	Percent   int
	Completed int
	Total     int
}

// ProgressObserver receives upload progress. Implementations must not block.
type ProgressObserver interface {
	OnItemProgress(p ItemProgress)
	OnBatchProgress(p BatchProgress)
}

// NopProgressObserver discards progress.
type NopProgressObserver struct{}

func (NopProgressObserver) OnItemProgress(ItemProgress)   {}
func (NopProgressObserver) OnBatchProgress(BatchProgress) {}
