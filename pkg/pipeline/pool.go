package pipeline

import (
	"runtime"

	"histotile/internal/models"
	"histotile/pkg/slide"
)

// slideResult carries one worker's output back to the aggregator.
type slideResult struct {
	outcome models.Outcome
	errs    []models.ProcessingError
}

// ProcessAll fans the slide entries out over a fixed-size worker pool.
// Each slide is handled end-to-end by exactly one worker, so no state is
// shared between slides; outcome and error records are merged by this
// single aggregating caller after all workers return.
func (p *Pipeline) ProcessAll(entries []slide.Entry, workers int) ([]models.Outcome, []models.ProcessingError) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	jobs := make(chan slide.Entry)
	results := make(chan slideResult)

	for i := 0; i < workers; i++ {
		go func() {
			for e := range jobs {
				outcome, errs := p.Process(e.PatientID, e.SlidePath, e.ResultPath)
				results <- slideResult{outcome: outcome, errs: errs}
			}
		}()
	}

	go func() {
		for _, e := range entries {
			jobs <- e
		}
		close(jobs)
	}()

	outcomes := make([]models.Outcome, 0, len(entries))
	var errs []models.ProcessingError
	for range entries {
		res := <-results
		outcomes = append(outcomes, res.outcome)
		errs = append(errs, res.errs...)
	}
	return outcomes, errs
}
