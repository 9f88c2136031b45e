package domain

import "errors"

// ErrNotFound возвращается при обращении к несуществующему контенту или профилю.
var ErrNotFound = errors.New("контент не найден")

// ErrValidation возвращается, когда входные данные или ответ LLM не прошли разбор.
var ErrValidation = errors.New("данные не прошли валидацию")

// ErrCacheMiss возвращается кэшем при отсутствии ключа.
var ErrCacheMiss = errors.New("ключ в кэше не найден")
