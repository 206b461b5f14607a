package linebuf_test

import (
	"fmt"
	"strings"

	"github.com/pior/linebuf"
)

func ExampleReader_ReadLine() {
	r := linebuf.NewReader(strings.NewReader("HD\r\nEN\r\n"), 64)

	for {
		line, err := r.ReadLine()
		if err != nil {
			break
		}
		fmt.Printf("%q\n", line)
		r.Consume(len(line))
	}
	// Output:
	// "HD\r\n"
	// "EN\r\n"
}

func ExampleReader_ReadFull() {
	r := linebuf.NewReader(strings.NewReader("VA 5\r\nhello\r\n"), 64)

	line, _ := r.ReadLine()
	fmt.Printf("%q\n", line)
	r.Consume(len(line))

	value := make([]byte, 5+2)
	if err := r.ReadFull(value); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%q\n", value[:5])
	// Output:
	// "VA 5\r\n"
	// "hello"
}

func ExampleLineTooLongError() {
	r := linebuf.NewReader(strings.NewReader("this line does not fit\r\n"), 8)

	_, err := r.ReadLine()
	fmt.Println(err)
	// Output:
	// linebuf: line too long: 8 bytes buffered, capacity 8
}
