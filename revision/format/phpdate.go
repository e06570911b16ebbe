package format

import (
	"strconv"
	"strings"
	"time"
)

// phpDate 按 PHP date() 的格式字母输出时间，'\' 转义下一个字符，未知字母原样输出
func phpDate(layout string, t time.Time) string {
	var sb strings.Builder
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c == '\\' && i+1 < len(layout) {
			i++
			sb.WriteByte(layout[i])
			continue
		}
		switch c {
		// 日
		case 'd':
			sb.WriteString(t.Format("02"))
		case 'D':
			sb.WriteString(t.Format("Mon"))
		case 'j':
			sb.WriteString(strconv.Itoa(t.Day()))
		case 'l':
			sb.WriteString(t.Format("Monday"))
		case 'N':
			wd := int(t.Weekday())
			if wd == 0 {
				wd = 7
			}
			sb.WriteString(strconv.Itoa(wd))
		case 'S':
			sb.WriteString(ordinalSuffix(t.Day()))
		case 'w':
			sb.WriteString(strconv.Itoa(int(t.Weekday())))
		case 'z':
			sb.WriteString(strconv.Itoa(t.YearDay() - 1))
		// 周
		case 'W':
			_, week := t.ISOWeek()
			sb.WriteString(pad2(week))
		// 月
		case 'F':
			sb.WriteString(t.Format("January"))
		case 'm':
			sb.WriteString(t.Format("01"))
		case 'M':
			sb.WriteString(t.Format("Jan"))
		case 'n':
			sb.WriteString(strconv.Itoa(int(t.Month())))
		case 't':
			sb.WriteString(strconv.Itoa(daysIn(t)))
		// 年
		case 'L':
			if daysIn(time.Date(t.Year(), time.February, 1, 0, 0, 0, 0, time.UTC)) == 29 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		case 'o':
			year, _ := t.ISOWeek()
			sb.WriteString(strconv.Itoa(year))
		case 'Y':
			sb.WriteString(t.Format("2006"))
		case 'y':
			sb.WriteString(t.Format("06"))
		// 时间
		case 'a':
			sb.WriteString(t.Format("pm"))
		case 'A':
			sb.WriteString(t.Format("PM"))
		case 'g':
			sb.WriteString(t.Format("3"))
		case 'G':
			sb.WriteString(strconv.Itoa(t.Hour()))
		case 'h':
			sb.WriteString(t.Format("03"))
		case 'H':
			sb.WriteString(t.Format("15"))
		case 'i':
			sb.WriteString(t.Format("04"))
		case 's':
			sb.WriteString(t.Format("05"))
		case 'u':
			sb.WriteString(t.Format(".000000")[1:])
		case 'v':
			sb.WriteString(t.Format(".000")[1:])
		// 时区
		case 'e':
			sb.WriteString(t.Location().String())
		case 'T':
			sb.WriteString(t.Format("MST"))
		case 'P':
			sb.WriteString(t.Format("-07:00"))
		case 'O':
			sb.WriteString(t.Format("-0700"))
		case 'Z':
			_, offset := t.Zone()
			sb.WriteString(strconv.Itoa(offset))
		// 完整格式
		case 'c':
			sb.WriteString(t.Format(time.RFC3339))
		case 'r':
			sb.WriteString(t.Format(time.RFC1123Z))
		case 'U':
			sb.WriteString(strconv.FormatInt(t.Unix(), 10))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
