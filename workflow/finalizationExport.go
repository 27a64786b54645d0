package workflow

import (
	"context"
	"fmt"
	"io"

	"github.com/sami157/dining-management-server/models"
	"github.com/xuri/excelize/v2"
)

const (
	membersSheet  = "Members"
	summarySheet  = "Summary"
	XlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var memberSheetHeadings = []string{
	"MemberId", "MemberName", "TotalMeals", "TotalDeposits", "MealCost",
	"MosqueFee", "PreviousBalance", "NewBalance", "Status",
}

func cell(col int, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// BuildFinalizationWorkbook lays a finalization out as a summary sheet and one row per member.
func BuildFinalizationWorkbook(fin *models.MonthlyFinalization) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(membersSheet); err != nil {
		return nil, err
	}

	summary := [][]interface{}{
		{"Month", fin.Month},
		{"TotalMembers", fin.TotalMembers},
		{"TotalMealsServed", fin.TotalMealsServed.InexactFloat64()},
		{"TotalDeposits", fin.TotalDeposits.InexactFloat64()},
		{"TotalExpenses", fin.TotalExpenses.InexactFloat64()},
		{"MealRate", fin.MealRate.InexactFloat64()},
		{"FinalizedAt", fin.FinalizedAt.Format("2006-01-02 15:04:05")},
	}
	for _, c := range fin.ExpenseBreakdown {
		summary = append(summary, []interface{}{"Expense: " + c.Category, c.Amount.InexactFloat64()})
	}
	for i, row := range summary {
		if err := f.SetSheetRow(summarySheet, cell(1, i+1), &row); err != nil {
			return nil, err
		}
	}

	headings := make([]interface{}, 0, len(memberSheetHeadings))
	for _, h := range memberSheetHeadings {
		headings = append(headings, h)
	}
	if err := f.SetSheetRow(membersSheet, "A1", &headings); err != nil {
		return nil, err
	}
	for i, d := range fin.MemberDetails {
		row := []interface{}{
			d.MemberId,
			d.MemberName,
			d.TotalMeals.InexactFloat64(),
			d.TotalDeposits.InexactFloat64(),
			d.MealCost.InexactFloat64(),
			d.MosqueFee.InexactFloat64(),
			d.PreviousBalance.InexactFloat64(),
			d.NewBalance.InexactFloat64(),
			string(d.Status),
		}
		if err := f.SetSheetRow(membersSheet, cell(1, i+2), &row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ExportFinalization writes the workbook of a finalized month to out.
func (w *FinanceWorkflow) ExportFinalization(ctx context.Context, month string, out io.Writer) error {
	fin, err := w.GetFinalization(ctx, month)
	if err != nil {
		return err
	}
	f, err := BuildFinalizationWorkbook(fin)
	if err != nil {
		return fmt.Errorf("building workbook for %s: %w", month, err)
	}
	defer f.Close()
	return f.Write(out)
}

func FinalizationExportFilename(month string) string {
	return fmt.Sprintf("finalization-%s.xlsx", month)
}
