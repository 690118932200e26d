// Package utils provides loosely typed value helpers shared by the data
// sources: conversion of SQL column values and query string parameters, and
// ordering of row values of unknown type.
package utils
