// internal/solvency/scorer.go
package solvency

import "github.com/shopspring/decimal"

const (
	MinCreditScore = 300
	MaxCreditScore = 850

	maxSubScore             = 100
	retiredEmploymentScore  = 70
	employmentPointsPerYear = 10
	defaultPenaltyMax       = 50
	defaultPenaltyPerYear   = 5
	bankruptcyPenaltyMax    = 70
	bankruptcyPenaltyYear   = 7
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)

	// Composite weights. They sum to exactly 1.
	creditWeight         = decimal.RequireFromString("0.30")
	employmentWeight     = decimal.RequireFromString("0.20")
	incomeWeight         = decimal.RequireFromString("0.20")
	debtRatioWeight      = decimal.RequireFromString("0.15")
	paymentHistoryWeight = decimal.RequireFromString("0.15")

	incomeRatioMultiplier = decimal.NewFromInt(25)
	creditSpan            = decimal.NewFromInt(MaxCreditScore - MinCreditScore)
)

// ComputeRating scores a questionnaire. It is deterministic and has no side
// effects. The questionnaire must have passed Validate.
func ComputeRating(q Questionnaire) Rating {
	employment := EmploymentScore(q.EmploymentStatus, q.EmploymentLength)
	income := IncomeScore(q.AnnualIncome, q.MonthlyExpenses)
	debt := DebtRatioScore(q.ExistingLoans, q.AnnualIncome)
	payment := PaymentHistoryScore(q.Default, q.Bankruptcy)

	return Rating{
		CreditScore:         q.CreditScore,
		EmploymentScore:     employment,
		IncomeScore:         income,
		DebtRatioScore:      debt,
		PaymentHistoryScore: payment,
		OverallRating:       Composite(q.CreditScore, employment, income, debt, payment),
	}
}

// EmploymentScore gives ten points per year of tenure for the employed and
// self-employed, capped at 100. Retirees get a flat 70.
func EmploymentScore(status EmploymentStatus, years int) int {
	switch status {
	case EmploymentEmployed, EmploymentSelfEmployed:
		if years >= maxSubScore/employmentPointsPerYear {
			return maxSubScore
		}
		return clamp(years*employmentPointsPerYear, 0, maxSubScore)
	case EmploymentRetired:
		return retiredEmploymentScore
	default:
		return 0
	}
}

// IncomeScore rates monthly income against monthly expenses; a 4:1 ratio
// saturates. Zero expenses score 100.
func IncomeScore(annualIncome, monthlyExpenses decimal.Decimal) int {
	if !monthlyExpenses.IsPositive() {
		return maxSubScore
	}
	// (annual/12 / expenses) * 25, with a single division.
	score := annualIncome.Mul(incomeRatioMultiplier).Div(monthlyExpenses.Mul(twelve))
	return roundScore(decimal.Min(score, hundred))
}

// DebtRatioScore is 100 minus the debt-to-income percentage. Zero income
// scores 0.
func DebtRatioScore(existingLoans, annualIncome decimal.Decimal) int {
	if !annualIncome.IsPositive() {
		return 0
	}
	dti := existingLoans.Mul(hundred).Div(annualIncome)
	return roundScore(decimal.Max(decimal.Zero, hundred.Sub(dti)))
}

// PaymentHistoryScore starts at 100 and subtracts a penalty for each reported
// default and bankruptcy. Both penalties fade out linearly over ten years.
func PaymentHistoryScore(def, bankruptcy Incident) int {
	score := maxSubScore
	if years, ok := def.YearsAgo(); ok {
		score -= fadingPenalty(defaultPenaltyMax, defaultPenaltyPerYear, years)
	}
	if years, ok := bankruptcy.YearsAgo(); ok {
		score -= fadingPenalty(bankruptcyPenaltyMax, bankruptcyPenaltyYear, years)
	}
	return max(0, score)
}

// fadingPenalty is maxPenalty reduced by perYear for each year elapsed. It
// reaches zero before years*perYear can overflow.
func fadingPenalty(maxPenalty, perYear, years int) int {
	if years >= maxPenalty/perYear {
		return 0
	}
	return max(0, maxPenalty-years*perYear)
}

// CreditContribution rescales a credit score from [300, 850] to [0, 100]
// without rounding.
func CreditContribution(creditScore int) decimal.Decimal {
	return decimal.NewFromInt(int64(creditScore - MinCreditScore)).Mul(hundred).Div(creditSpan)
}

// Composite combines the credit score and the four rounded sub-scores into
// the overall rating.
func Composite(creditScore, employment, income, debtRatio, paymentHistory int) int {
	total := CreditContribution(creditScore).Mul(creditWeight).
		Add(decimal.NewFromInt(int64(employment)).Mul(employmentWeight)).
		Add(decimal.NewFromInt(int64(income)).Mul(incomeWeight)).
		Add(decimal.NewFromInt(int64(debtRatio)).Mul(debtRatioWeight)).
		Add(decimal.NewFromInt(int64(paymentHistory)).Mul(paymentHistoryWeight))

	return clamp(roundScore(total), 0, maxSubScore)
}

// roundScore rounds half away from zero, which is half-up for the
// non-negative values scored here.
func roundScore(d decimal.Decimal) int {
	return int(d.Round(0).IntPart())
}

func clamp(v, lo, hi int) int {
	return min(hi, max(lo, v))
}
