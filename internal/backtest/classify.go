package backtest

// classReport holds classification metrics for one run. Precision,
// recall and F1 are weighted averages across classes, each class
// weighted by its ground-truth support.
type classReport struct {
	accuracy  float64
	precision float64
	recall    float64
	f1        float64
	confusion [][]int
}

// classificationReport compares predictions against ground truth
// row-for-row. The confusion matrix is ordered by the codec's class
// list, actual labels on rows and predicted labels on columns. Rows
// whose actual label is outside the class list count against accuracy
// but carry no weight in the per-class averages.
func classificationReport(actual, predicted, classes []string) classReport {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	confusion := make([][]int, len(classes))
	for i := range confusion {
		confusion[i] = make([]int, len(classes))
	}

	correct := 0
	for i := range actual {
		if actual[i] == predicted[i] {
			correct++
		}
		ai, aok := index[actual[i]]
		pi, pok := index[predicted[i]]
		if aok && pok {
			confusion[ai][pi]++
		}
	}

	report := classReport{confusion: confusion}
	if len(actual) > 0 {
		report.accuracy = float64(correct) / float64(len(actual))
	}

	total := 0
	for ci := range classes {
		support := 0
		truePositive := confusion[ci][ci]
		predictedAs := 0
		for cj := range classes {
			support += confusion[ci][cj]
			predictedAs += confusion[cj][ci]
		}
		if support == 0 {
			continue
		}
		total += support

		var precision, recall float64
		if predictedAs > 0 {
			precision = float64(truePositive) / float64(predictedAs)
		}
		recall = float64(truePositive) / float64(support)

		var f1 float64
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		w := float64(support)
		report.precision += w * precision
		report.recall += w * recall
		report.f1 += w * f1
	}

	if total > 0 {
		report.precision /= float64(total)
		report.recall /= float64(total)
		report.f1 /= float64(total)
	}
	return report
}
