package recommend

const (
	// coldStartScore is assigned to every article when no interactions
	// exist at all.
	coldStartScore = 0.5
	// coldArticleScore is the baseline for articles without interactions
	// when others have them.
	coldArticleScore = 0.1

	viewWeight   = 0.4
	clickWeight  = 0.3
	ratingWeight = 0.3
)

// popularityScores maps article IDs to a [0,1] popularity score derived
// from interaction aggregates: views 40%, clicks 30%, rating 30%. View and
// click counts are normalized by the corpus maximum; ratings (1–5) are
// rescaled to [0,1].
func popularityScores(articles []Article, stats []InteractionStats) map[int64]float64 {
	scores := make(map[int64]float64, len(articles))

	if len(stats) == 0 {
		for _, a := range articles {
			scores[a.ID] = coldStartScore
		}
		return scores
	}

	maxViews, maxClicks := 1, 1
	for _, st := range stats {
		if st.Views > maxViews {
			maxViews = st.Views
		}
		if st.Clicks > maxClicks {
			maxClicks = st.Clicks
		}
	}

	for _, st := range stats {
		viewScore := float64(st.Views) / float64(maxViews)
		clickScore := float64(st.Clicks) / float64(maxClicks)
		ratingScore := (st.AvgRating - 1) / 4
		if ratingScore < 0 {
			ratingScore = 0
		} else if ratingScore > 1 {
			ratingScore = 1
		}
		scores[st.ArticleID] = viewWeight*viewScore + clickWeight*clickScore + ratingWeight*ratingScore
	}

	for _, a := range articles {
		if _, ok := scores[a.ID]; !ok {
			scores[a.ID] = coldArticleScore
		}
	}
	return scores
}
