package analysis

// RawRegionResult is the unprocessed recognized text of one region of one
// image. A failed region carries empty Text and the failure in Err.
type RawRegionResult struct {
	Region string `json:"region"`
	Text   string `json:"text"`
	Err    error  `json:"-"`
}

// RegionTexts indexes results by region name.
func RegionTexts(results []RawRegionResult) map[string]string {
	m := make(map[string]string, len(results))
	for _, r := range results {
		m[r.Region] = r.Text
	}
	return m
}

// FailedRegions lists the names of regions whose recognition failed, in order.
func FailedRegions(results []RawRegionResult) []string {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Region)
		}
	}
	return failed
}
