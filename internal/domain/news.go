package domain

import "time"

// DistributionStatus is the news article delivery state. The pending to
// distributed transition happens exactly once per article.
type DistributionStatus string

const (
	DistributionPending     DistributionStatus = "pending"
	DistributionDistributed DistributionStatus = "distributed"
)

// NewsArticle is a market news item gated by information tier.
type NewsArticle struct {
	ID                 string
	Headline           string
	Body               string
	RequiredTierID     string
	DistributionStatus DistributionStatus
	DistributedAt      *time.Time
	PublishedAt        time.Time
}

// InformationTier is a ranked subscription level. Higher rank sees more.
type InformationTier struct {
	ID   string
	Name string
	Rank int
}

// TierUser is a user as seen by the news distributor: just an identity and
// the tier they subscribe to.
type TierUser struct {
	ID     string
	TierID string
}
