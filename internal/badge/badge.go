// Package badge 徽章规则：纯函数，只依赖用户计数器
package badge

import "mindmate/internal/model"

// Counter 计数器名称
type Counter string

const (
	MoodStreak          Counter = "moodStreak"
	SelfCareStreak      Counter = "selfCareStreak"
	JournalStreak       Counter = "journalStreak"
	CommunityEngagement Counter = "communityEngagementStreak"
)

// Rule 达到阈值即获得徽章
type Rule struct {
	Type      string
	Counter   Counter
	Threshold int
}

// Rules 徽章规则表
var Rules = []Rule{
	{Type: "STREAK_10", Counter: MoodStreak, Threshold: 10},
	{Type: "STREAK_50", Counter: MoodStreak, Threshold: 50},
	{Type: "STREAK_100", Counter: MoodStreak, Threshold: 100},
	{Type: "SELF_CARE_5", Counter: SelfCareStreak, Threshold: 5},
	{Type: "SELF_CARE_10", Counter: SelfCareStreak, Threshold: 10},
	{Type: "SELF_CARE_30", Counter: SelfCareStreak, Threshold: 30},
	{Type: "SELF_CARE_50", Counter: SelfCareStreak, Threshold: 50},
	{Type: "SELF_CARE_75", Counter: SelfCareStreak, Threshold: 75},
	{Type: "SELF_CARE_100", Counter: SelfCareStreak, Threshold: 100},
	{Type: "JOURNALING_10", Counter: JournalStreak, Threshold: 10},
	{Type: "JOURNALING_50", Counter: JournalStreak, Threshold: 50},
	{Type: "COMMUNITY_ENGAGEMENT_50", Counter: CommunityEngagement, Threshold: 50},
	{Type: "COMMUNITY_ENGAGEMENT_100", Counter: CommunityEngagement, Threshold: 100},
}

// Counters 从用户模型提取计数器
func Counters(u *model.User) map[Counter]int {
	return map[Counter]int{
		MoodStreak:          u.MoodStreak,
		SelfCareStreak:      u.SelfCareStreak,
		JournalStreak:       u.JournalStreak,
		CommunityEngagement: u.CommunityEngagementStreak,
	}
}

// Evaluate 返回达到阈值但尚未拥有的徽章类型，按规则表顺序
// 已获得的徽章不会因为计数下降而收回
func Evaluate(counters map[Counter]int, owned []string) []string {
	have := make(map[string]struct{}, len(owned))
	for _, t := range owned {
		have[t] = struct{}{}
	}

	var earned []string
	for _, r := range Rules {
		if counters[r.Counter] < r.Threshold {
			continue
		}
		if _, ok := have[r.Type]; ok {
			continue
		}
		earned = append(earned, r.Type)
	}
	return earned
}
