package monitor

import (
	"math"

	"github.com/rewired-gh/gamepulse/internal/models"
)

// MinSigma keeps z-scores finite for flat series.
const MinSigma = 1.0

func UpdateWelford(st *models.RunningStats, value float64) {
	st.Count++
	delta := value - st.Mean
	st.Mean += delta / float64(st.Count)
	delta2 := value - st.Mean
	st.M2 += delta * delta2
}

func GetSigma(st *models.RunningStats) float64 {
	if st.Count < 2 {
		return MinSigma
	}
	variance := st.M2 / float64(st.Count-1)
	return math.Max(math.Sqrt(variance), MinSigma)
}

// ZScore returns how many sigmas value lies from the running mean.
func ZScore(st *models.RunningStats, value float64) float64 {
	return (value - st.Mean) / GetSigma(st)
}
