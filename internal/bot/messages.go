package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xoranyx-bot/internal/ledger"
)

const (
	textGenericError = "❌ Something went wrong. Please try again later."
	textAccessDenied = "⛔ Access denied."
	textCopyLink     = "Link is displayed above. Please copy manually."
	textShareLink    = "Share the link displayed above with your friends."
	textMainMenu     = "Main menu:"
)

func formatLimit(limit int) string {
	if limit == ledger.Unlimited {
		return "∞"
	}
	return strconv.Itoa(limit)
}

func progress(count, limit int) string {
	if limit <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", count*100/limit)
}

func welcomeText(botName, firstName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🤖 Welcome to %s, %s!\n\n", botName, firstName)
	fmt.Fprintf(&sb, "✨ %s is a smart earning system that allows you to:\n", botName)
	sb.WriteString("• 📺 Earn by watching ads\n")
	sb.WriteString("• 📋 Collect coins by completing small tasks\n")
	sb.WriteString("• 👥 Get rewards by inviting friends\n")
	sb.WriteString("• 💰 Manage your earnings\n\n")
	sb.WriteString("👇 Choose an option to start:")
	return sb.String()
}

func referralNotice(res ledger.AttributionResult) string {
	if res.Status == ledger.StatusSkipped || res.WelcomeGift <= 0 {
		return ""
	}
	return fmt.Sprintf("\n\n🎉 You joined via friend's invite! Received %d coins gift!", res.WelcomeGift)
}

func loginBonusNotice(res ledger.ActionResult) string {
	if res.Status != ledger.ActionCredited {
		return ""
	}
	return fmt.Sprintf("\n\n🎁 Daily login bonus: +%d coins. Balance: %d coins", res.Reward, res.NewBalance)
}

func adText(botName string) string {
	return fmt.Sprintf("📺 %s Ads\n\n"+
		"🎯 Special Offer for You:\n"+
		"Learn Go Programming - Free Course\n\n"+
		"⏱️ Duration: 30 seconds\n\n"+
		"💡 Please watch the ad completely to receive your reward.\n\n"+
		"👇 After watching completely, click the confirm button below.", botName)
}

func adLimitText() string {
	return "⚠️ Daily Limit Reached\n\n" +
		"You have reached the maximum number of ads for today.\n" +
		"🕒 Please try again tomorrow."
}

func adResultText(res ledger.ActionResult) string {
	if res.Status == ledger.ActionLimitReached {
		return adLimitText()
	}
	return fmt.Sprintf("✅ Ad watched successfully!\n\n"+
		"🎁 %d coins added to your account.\n"+
		"💰 Current balance: %d coins\n\n"+
		"📊 Today's stats: %d/%s ads",
		res.Reward, res.NewBalance, res.Count, formatLimit(res.Limit))
}

func tasksText(botName string) string {
	return fmt.Sprintf("📋 %s Micro Tasks\n\n"+
		"Complete tasks and earn coins:\n"+
		"Click on a task to start.", botName)
}

func taskResultText(task ledger.Task, res ledger.ActionResult) string {
	if res.Status == ledger.ActionLimitReached {
		return "⚠️ You have reached the maximum tasks allowed for today."
	}
	return fmt.Sprintf("✅ Task '%s' completed successfully!\n\n"+
		"🎁 %d coins added to your account.\n"+
		"💰 Current balance: %d coins",
		task.Title, res.Reward, res.NewBalance)
}

func inviteLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
}

func inviteText(botName, link string, user ledger.UserView, settings ledger.Settings) string {
	return fmt.Sprintf("👥 %s Referral System\n\n"+
		"🔗 Your personal invite link:\n`%s`\n\n"+
		"🎁 Referral rewards:\n"+
		"• 👤 You: *%d coins* per successful invite\n"+
		"• 👥 Your friend: *%d coins* welcome gift\n\n"+
		"📊 Your referral stats:\n"+
		"• Total invites: *%d*\n"+
		"• Maximum allowed: *%s*\n"+
		"• Total rewards: *%d coins*",
		botName, link,
		settings.Rewards.Invite, settings.Rewards.WelcomeGift,
		user.InvitesCount, formatLimit(settings.Limits.MaxInvites),
		int64(user.InvitesCount)*settings.Rewards.Invite)
}

func balanceText(botName string, user ledger.UserView, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Your Financial Status in %s\n\n", botName)
	fmt.Fprintf(&sb, "💎 Coin balance: %d\n", user.Coins)
	fmt.Fprintf(&sb, "🏦 Total earned: %d coins\n\n", user.TotalEarned)
	sb.WriteString("📊 Recent transactions:")

	if len(user.RecentTransactions) == 0 {
		sb.WriteString("\n• No transactions yet")
	}
	for _, tx := range user.RecentTransactions {
		fmt.Fprintf(&sb, "\n• [%s] %s: *%d coins*", tx.CreatedAt.In(loc).Format("15:04"), tx.Reason, tx.Amount)
	}
	return sb.String()
}

func statsText(botName string, user ledger.UserView, limits ledger.Limits) string {
	s := user.DailyStats
	return fmt.Sprintf("📊 Your Daily Stats in %s\n\n"+
		"📺 Ads watched: %d/%s\n"+
		"📋 Tasks completed: %d/%s\n"+
		"👥 Successful invites: %d\n\n"+
		"💰 Overall performance:\n"+
		"• Total earned: *%d coins*\n"+
		"• Current balance: *%d coins*\n\n"+
		"📈 Daily progress:\n"+
		"• Ads: %s\n"+
		"• Tasks: %s",
		botName,
		s.AdsWatched, formatLimit(limits.MaxAdsPerDay),
		s.TasksCompleted, formatLimit(limits.MaxTasksPerDay),
		user.InvitesCount,
		user.TotalEarned, user.Coins,
		progress(s.AdsWatched, limits.MaxAdsPerDay),
		progress(s.TasksCompleted, limits.MaxTasksPerDay))
}

func webAppDataText(user ledger.UserView) string {
	return fmt.Sprintf("📊 Your data:\n\n"+
		"Balance: %d coins\n"+
		"Ads watched: %d\n"+
		"Tasks completed: %d",
		user.Coins, user.DailyStats.AdsWatched, user.DailyStats.TasksCompleted)
}

func adminHelpText() string {
	return "👑 Admin Commands:\n\n" +
		"/addcoins [user_id] [amount] - Add coins to user\n" +
		"/removecoins [user_id] [amount] - Remove coins from user\n" +
		"/userinfo [user_id] - Get user info\n" +
		"/stats - Get bot statistics"
}

func userInfoText(user ledger.UserView) string {
	invitedBy := "-"
	if user.InvitedBy != nil {
		invitedBy = strconv.FormatInt(*user.InvitedBy, 10)
	}
	return fmt.Sprintf("👤 User %d\n\n"+
		"💎 Coins: %d\n"+
		"🏦 Total earned: %d\n"+
		"👥 Invites: %d\n"+
		"🔗 Invited by: %s\n"+
		"📺 Ads today: %d\n"+
		"📋 Tasks today: %d",
		user.ID, user.Coins, user.TotalEarned, user.InvitesCount, invitedBy,
		user.DailyStats.AdsWatched, user.DailyStats.TasksCompleted)
}

func botStatsText(t ledger.Totals) string {
	return fmt.Sprintf("📈 Bot statistics\n\n"+
		"👥 Users: %d\n"+
		"💎 Coins in circulation: %d\n"+
		"🏦 Coins earned: %d\n"+
		"🤝 Invites: %d",
		t.Users, t.Coins, t.TotalEarned, t.Invites)
}

// InviteRewardText is sent to an inviter once their reward is paid.
func InviteRewardText(inviteeID, reward int64) string {
	return fmt.Sprintf("🎉 User %d joined with your invite link! +%d coins", inviteeID, reward)
}

// parseStartPayload returns the inviter id carried by a /start deep link.
func parseStartPayload(text string) (int64, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseAdminArgs parses "/cmd <user_id> [amount]".
func parseAdminArgs(text string, withAmount bool) (userID, amount int64, err error) {
	fields := strings.Fields(text)
	want := 2
	if withAmount {
		want = 3
	}
	if len(fields) != want {
		return 0, 0, fmt.Errorf("expected %d arguments", want-1)
	}
	userID, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid user id %q", fields[1])
	}
	if withAmount {
		amount, err = strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid amount %q", fields[2])
		}
	}
	return userID, amount, nil
}

func parseTaskID(data string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimPrefix(data, "task_"))
	if err != nil {
		return 0, false
	}
	return id, true
}
