package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rushteam/nextcart/core"
)

// LoadTransactions 读取订单明细 CSV。
// 期望表头包含 user_id, order_number, add_to_cart_order, product_id（顺序不限）。
func LoadTransactions(path string) ([]core.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transactions: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header, "user_id", "order_number", "add_to_cart_order", "product_id")
	if err != nil {
		return nil, err
	}

	var records []core.Transaction
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		userID, err1 := strconv.ParseInt(row[cols["user_id"]], 10, 64)
		orderNum, err2 := strconv.Atoi(row[cols["order_number"]])
		cartPos, err3 := strconv.Atoi(row[cols["add_to_cart_order"]])
		itemID, err4 := strconv.ParseInt(row[cols["product_id"]], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue // 脏行跳过
		}
		records = append(records, core.Transaction{
			UserID:       userID,
			OrderNumber:  orderNum,
			CartPosition: cartPos,
			ItemID:       itemID,
		})
	}
	return records, nil
}

// LoadProducts 读取商品元数据 CSV。
// 期望表头包含 product_id, product_name；aisle 与 department 可选。
func LoadProducts(path string) (map[int64]*core.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open products: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header, "product_id", "product_name")
	if err != nil {
		return nil, err
	}
	aisleCol, deptCol := -1, -1
	for i, name := range header {
		switch name {
		case "aisle":
			aisleCol = i
		case "department":
			deptCol = i
		}
	}

	products := make(map[int64]*core.Product)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		id, err := strconv.ParseInt(row[cols["product_id"]], 10, 64)
		if err != nil {
			continue
		}
		p := &core.Product{ID: id, Name: row[cols["product_name"]]}
		if aisleCol >= 0 {
			p.Aisle = row[aisleCol]
		}
		if deptCol >= 0 {
			p.Department = row[deptCol]
		}
		products[id] = p
	}
	return products, nil
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return cols, nil
}
