package reports

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*\.(json|csv)$`)

// Exporter writes report files into one directory and serves them back.
type Exporter struct {
	dir string
	now func() time.Time
}

// NewExporter returns an exporter rooted at dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// Exported describes a written report file.
type Exported struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Summary  string `json:"summary"`
}

// document is the JSON file layout.
type document struct {
	Report      string    `json:"report"`
	GeneratedAt time.Time `json:"generated_at"`
	Summary     string    `json:"summary"`
	Data        any       `json:"data"`
}

// Export writes data as a uniquely named file. name is the report base name,
// for example sales_report_2025-01-01_2025-01-31.
func (e *Exporter) Export(name, format string, data any) (Exported, error) {
	switch format {
	case FormatJSON, FormatCSV:
	default:
		return Exported{}, ErrInvalidFormat
	}
	filename := fmt.Sprintf("%s_%s.%s", name, strings.SplitN(uuid.NewString(), "-", 2)[0], format)
	return e.Write(filename, data)
}

// Write stores data under filename, replacing an existing file. The format is
// taken from the extension.
func (e *Exporter) Write(filename string, data any) (Exported, error) {
	if !filenamePattern.MatchString(filename) || strings.Contains(filename, "..") {
		return Exported{}, ErrInvalidFilename
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Exported{}, fmt.Errorf("reports: create dir: %w", err)
	}
	root, err := os.OpenRoot(e.dir)
	if err != nil {
		return Exported{}, err
	}
	defer root.Close()
	f, err := root.Create(filename)
	if err != nil {
		return Exported{}, err
	}
	title := reportTitle(filename)
	summary := Summarize(title, data)
	if strings.HasSuffix(filename, "."+FormatCSV) {
		err = WriteCSV(f, data)
	} else {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "    ")
		err = enc.Encode(document{Report: title, GeneratedAt: e.now().UTC(), Summary: summary, Data: data})
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Exported{}, err
	}
	return Exported{Message: "Report exported to " + filename, Filename: filename, Summary: summary}, nil
}

// Open returns a previously exported file. Names that could leave the
// reports directory are rejected.
func (e *Exporter) Open(filename string) (*os.File, error) {
	if !filenamePattern.MatchString(filename) || strings.Contains(filename, "..") {
		return nil, ErrInvalidFilename
	}
	root, err := os.OpenRoot(e.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	defer root.Close()
	f, err := root.Open(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrReportNotFound
	}
	return f, err
}

func reportTitle(filename string) string {
	base := filename[:strings.LastIndex(filename, ".")]
	words := []string{}
	for _, w := range strings.Split(base, "_") {
		if w == "" || w[0] >= '0' && w[0] <= '9' {
			break
		}
		words = append(words, w)
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

var printer = message.NewPrinter(language.English)

// Summarize renders a one line human readable digest of a report.
func Summarize(title string, data any) string {
	switch v := data.(type) {
	case []SalesPeriod:
		sales, revenue := 0, decimal.Zero
		for _, p := range v {
			sales += p.TotalSales
			revenue = revenue.Add(p.Revenue)
		}
		return printer.Sprintf("%s: %d sales, revenue %.2f", title, sales, revenue.InexactFloat64())
	case []DailySales:
		sales, revenue := 0, decimal.Zero
		for _, p := range v {
			sales += p.TotalSales
			revenue = revenue.Add(p.TotalAmount)
		}
		return printer.Sprintf("%s: %d sales, revenue %.2f", title, sales, revenue.InexactFloat64())
	case InventoryValue:
		return printer.Sprintf("%s: %d products, retail value %.2f", title, v.Summary.TotalProducts, v.Summary.TotalRetailValue.InexactFloat64())
	default:
		_, records := table(data)
		return printer.Sprintf("%s: %d rows", title, len(records))
	}
}

// WriteCSV writes a report as CSV. Unknown payloads produce a single
// "No data available" row.
func WriteCSV(w io.Writer, data any) error {
	writer := csv.NewWriter(w)
	header, records := table(data)
	if len(records) == 0 {
		header = []string{"No data available"}
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func table(data any) ([]string, [][]string) {
	itoa := strconv.Itoa
	id := func(v int64) string { return strconv.FormatInt(v, 10) }
	money := func(d decimal.Decimal) string { return d.StringFixed(2) }
	var records [][]string
	switch v := data.(type) {
	case []SalesPeriod:
		for _, p := range v {
			records = append(records, []string{p.Date, itoa(p.TotalSales), money(p.Revenue), money(p.Taxes), money(p.Discounts), money(p.NetRevenue)})
		}
		return []string{"date", "total_sales", "revenue", "taxes", "discounts", "net_revenue"}, records
	case []DailySales:
		for _, p := range v {
			records = append(records, []string{p.Date, itoa(p.TotalSales), money(p.TotalAmount)})
		}
		return []string{"date", "total_sales", "total_amount"}, records
	case []ProductSales:
		for _, p := range v {
			records = append(records, []string{id(p.ProductID), p.ProductName, p.SKU, p.Category, itoa(p.QuantitySold), money(p.TotalRevenue), money(p.AveragePrice)})
		}
		return []string{"product_id", "product_name", "sku", "category", "quantity_sold", "total_revenue", "average_price"}, records
	case InventoryValue:
		for _, c := range v.ByCategory {
			records = append(records, []string{id(c.CategoryID), c.CategoryName, money(c.CostValue), money(c.RetailValue), itoa(c.ProductCount)})
		}
		return []string{"category_id", "category_name", "cost_value", "retail_value", "product_count"}, records
	case []CustomerSales:
		for _, c := range v {
			email := ""
			if c.Email != nil {
				email = *c.Email
			}
			records = append(records, []string{id(c.CustomerID), c.Name, email, itoa(c.TotalPurchases), money(c.TotalSpent), money(c.AveragePurchase), c.FirstPurchase, c.LastPurchase})
		}
		return []string{"customer_id", "name", "email", "total_purchases", "total_spent", "average_purchase", "first_purchase", "last_purchase"}, records
	case []MovementRow:
		for _, m := range v {
			records = append(records, []string{id(m.MovementID), m.MovementType, itoa(m.Quantity), id(m.ProductID), m.ProductName, m.SKU, m.Date, m.Notes})
		}
		return []string{"movement_id", "movement_type", "quantity", "product_id", "product_name", "sku", "date", "notes"}, records
	case []LowStockItem:
		for _, i := range v {
			records = append(records, []string{id(i.ProductID), i.ProductName, i.SKU, i.Category, itoa(i.CurrentStock), itoa(i.MinStockLevel), i.StockPercentage.StringFixed(2), i.Status})
		}
		return []string{"product_id", "product_name", "sku", "category", "current_stock", "min_stock_level", "stock_percentage", "status"}, records
	}
	return nil, nil
}
