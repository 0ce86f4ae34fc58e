package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"StockSentinel/internal/model"
)

// FormatInstrumentReport renders the enriched context of one instrument
// into a webhook message.
func FormatInstrumentReport(actx *model.AnalysisContext) string {
	var b strings.Builder

	name := actx.Name
	if name == "" {
		name = actx.Code
	}
	b.WriteString(fmt.Sprintf("📊 StockSentinel 个股日报 | %s (%s)\n\n", name, actx.Code))

	if latest := actx.Latest(); latest != nil {
		b.WriteString(fmt.Sprintf("交易日: %s (数据源: %s)\n", latest.DateString(), latest.Source))
		b.WriteString(fmt.Sprintf("收盘: %.2f", latest.Close))
		if latest.PctChg != nil {
			b.WriteString(fmt.Sprintf(" (%+.2f%%)", *latest.PctChg))
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("最高: %.2f | 最低: %.2f\n", latest.High, latest.Low))
		b.WriteString(formatMAs(latest))
	}

	if q := actx.Quote; q != nil {
		b.WriteString(fmt.Sprintf("\n💹 盘中快照 (%s)\n", q.FetchedAt.Format("15:04")))
		b.WriteString(fmt.Sprintf("现价: %.2f (%+.2f%%)\n", q.Price, q.ChangePct))
		b.WriteString(fmt.Sprintf("量比: %.2f | 换手率: %.2f%%\n", q.VolumeRatio, q.TurnoverRate))
		if q.PERatio > 0 {
			b.WriteString(fmt.Sprintf("市盈率: %.2f | 市净率: %.2f\n", q.PERatio, q.PBRatio))
		}
	}

	if actx.Chips != nil {
		price := 0.0
		if actx.Quote != nil {
			price = actx.Quote.Price
		} else if latest := actx.Latest(); latest != nil {
			price = latest.Close
		}
		b.WriteString("\n🎯 筹码分布\n")
		b.WriteString(fmt.Sprintf("获利比例: %.1f%%\n", actx.Chips.ProfitRatio*100))
		b.WriteString(actx.Chips.Status(price))
		b.WriteString("\n")
	}

	if actx.Trend != nil {
		b.WriteString("\n📈 趋势: ")
		b.WriteString(actx.Trend.Summary)
		b.WriteString("\n")
	}

	return b.String()
}

func formatMAs(r *model.DailyRecord) string {
	parts := make([]string, 0, 3)
	if r.MA5 != nil {
		parts = append(parts, fmt.Sprintf("MA5 %.2f", *r.MA5))
	}
	if r.MA10 != nil {
		parts = append(parts, fmt.Sprintf("MA10 %.2f", *r.MA10))
	}
	if r.MA20 != nil {
		parts = append(parts, fmt.Sprintf("MA20 %.2f", *r.MA20))
	}
	if len(parts) == 0 {
		return "均线: 历史数据不足\n"
	}
	return "均线: " + strings.Join(parts, " | ") + "\n"
}

// FormatRunSummary renders the end-of-run accounting: how many instruments
// were attempted, how many completed, and every failure with its reason.
func FormatRunSummary(total, done, failed int, errs map[string]string, elapsed time.Duration) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("🏁 StockSentinel 运行汇总 | %s\n\n", time.Now().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("共 %d 只，成功 %d，失败 %d，耗时 %.1fs\n", total, done, failed, elapsed.Seconds()))

	if len(errs) > 0 {
		codes := make([]string, 0, len(errs))
		for code := range errs {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		b.WriteString("\n❌ 失败明细:\n")
		for _, code := range codes {
			b.WriteString(fmt.Sprintf("  %s: %s\n", code, errs[code]))
		}
	}

	return b.String()
}
