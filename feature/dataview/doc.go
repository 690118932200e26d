// Package dataview offers typed filter and sort configuration on top of a
// reconcile.Reconciler.
//
//	v := dataview.NewList(r, people)
//	v.AddFilter(func(p Person) bool { return p.Age >= 18 })
//	v.SetSortComparator(func(a, b Person) int { return strings.Compare(a.Name, b.Name) })
//	n, _ := v.ItemCount(ctx)
package dataview
